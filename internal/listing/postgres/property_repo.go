// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rentloop Contributors

// Package postgres implements listing.Repository on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/rentloop/rentloop/internal/listing"
)

// poolIface is satisfied by *pgxpool.Pool and pgxmock pools.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const propertyColumns = `id, title, description, location, price, images, status, owner_id, version, deleted_at, created_at, updated_at`

// PropertyRepository implements listing.Repository using PostgreSQL.
// Every write is conditional on the stored version.
type PropertyRepository struct {
	pool poolIface
}

var _ listing.Repository = (*PropertyRepository)(nil)

// NewPropertyRepository creates a new PropertyRepository.
func NewPropertyRepository(pool poolIface) *PropertyRepository {
	return &PropertyRepository{pool: pool}
}

// Get retrieves a property by ID.
func (r *PropertyRepository) Get(ctx context.Context, id ulid.ULID, includeDeleted bool) (*listing.Property, error) {
	sql := `SELECT ` + propertyColumns + ` FROM properties WHERE id = $1`
	if !includeDeleted {
		sql += ` AND deleted_at IS NULL`
	}
	p, err := scanProperty(r.pool.QueryRow(ctx, sql, id.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, oops.With("operation", "get property").With("id", id.String()).Wrap(err)
	}
	return p, nil
}

// Find returns one page of matching properties, newest first, and the
// total number of matches.
func (r *PropertyRepository) Find(ctx context.Context, q listing.Query) ([]*listing.Property, int, error) {
	qb := applyQuery(q)
	where := qb.where()

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM properties`+where, qb.args...).Scan(&total); err != nil {
		return nil, 0, oops.With("operation", "count properties").Wrap(err)
	}
	if total == 0 || q.Offset >= total {
		return []*listing.Property{}, total, nil
	}

	sql := `SELECT ` + propertyColumns + ` FROM properties` + where + ` ORDER BY created_at DESC, id DESC`
	if q.Limit > 0 {
		sql += ` LIMIT ` + qb.placeholder(q.Limit)
	}
	if q.Offset > 0 {
		sql += ` OFFSET ` + qb.placeholder(q.Offset)
	}

	rows, err := r.pool.Query(ctx, sql, qb.args...)
	if err != nil {
		return nil, 0, oops.With("operation", "find properties").Wrap(err)
	}
	items, err := collectProperties(rows)
	if err != nil {
		return nil, 0, oops.With("operation", "find properties").Wrap(err)
	}
	return items, total, nil
}

// FindByIDs returns the properties among ids that exist. Order is unspecified.
func (r *PropertyRepository) FindByIDs(ctx context.Context, ids []ulid.ULID, includeDeleted bool) ([]*listing.Property, error) {
	if len(ids) == 0 {
		return []*listing.Property{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}
	sql := `SELECT ` + propertyColumns + ` FROM properties WHERE id = ANY($1)`
	if !includeDeleted {
		sql += ` AND deleted_at IS NULL`
	}
	rows, err := r.pool.Query(ctx, sql, keys)
	if err != nil {
		return nil, oops.With("operation", "find properties by id").With("count", len(ids)).Wrap(err)
	}
	items, err := collectProperties(rows)
	if err != nil {
		return nil, oops.With("operation", "find properties by id").Wrap(err)
	}
	return items, nil
}

// Insert persists a new property at version 1.
func (r *PropertyRepository) Insert(ctx context.Context, p *listing.Property) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO properties (id, title, description, location, price, images, status, owner_id, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9, $10)
	`, p.ID.String(), p.Title, p.Description, p.Location, p.Price, images(p.Images),
		string(p.Status), p.OwnerID.String(), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return mapWriteError(err, "insert property", p.ID)
	}
	p.Version = 1
	return nil
}

// UpdateIfVersion writes p if the stored version still equals
// expectedVersion, then refreshes p.Version and p.UpdatedAt.
func (r *PropertyRepository) UpdateIfVersion(ctx context.Context, p *listing.Property, expectedVersion int64) error {
	var (
		version   int64
		updatedAt time.Time
	)
	err := r.pool.QueryRow(ctx, `
		UPDATE properties
		SET title = $3, description = $4, location = $5, price = $6, images = $7, status = $8,
		    updated_at = $9, version = version + 1
		WHERE id = $1 AND version = $2 AND deleted_at IS NULL
		RETURNING version, updated_at
	`, p.ID.String(), expectedVersion, p.Title, p.Description, p.Location, p.Price,
		images(p.Images), string(p.Status), p.UpdatedAt).Scan(&version, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return r.explainMiss(ctx, p.ID, expectedVersion)
	}
	if err != nil {
		return mapWriteError(err, "update property", p.ID)
	}
	p.Version = version
	p.UpdatedAt = updatedAt
	return nil
}

// SoftDelete stamps deleted_at if the stored version still equals
// expectedVersion.
func (r *PropertyRepository) SoftDelete(ctx context.Context, id ulid.ULID, expectedVersion int64, at time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE properties
		SET deleted_at = $3, updated_at = $3, version = version + 1
		WHERE id = $1 AND version = $2 AND deleted_at IS NULL
	`, id.String(), expectedVersion, at)
	if err != nil {
		return mapWriteError(err, "delete property", id)
	}
	if result.RowsAffected() == 0 {
		return r.explainMiss(ctx, id, expectedVersion)
	}
	return nil
}

// explainMiss distinguishes a vanished record from a stale version after a
// conditional write matched no row.
func (r *PropertyRepository) explainMiss(ctx context.Context, id ulid.ULID, expectedVersion int64) error {
	var (
		version   int64
		deletedAt *time.Time
	)
	err := r.pool.QueryRow(ctx, `SELECT version, deleted_at FROM properties WHERE id = $1`, id.String()).
		Scan(&version, &deletedAt)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && deletedAt != nil) {
		return notFound(id)
	}
	if err != nil {
		return oops.With("operation", "check property version").With("id", id.String()).Wrap(err)
	}
	return oops.Code(listing.CodeVersionConflict).
		With("id", id.String()).
		With("expected_version", expectedVersion).
		With("actual_version", version).
		Wrap(listing.ErrConflict)
}

func mapWriteError(err error, operation string, id ulid.ULID) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return oops.Code(listing.CodeVersionConflict).
				With("id", id.String()).
				With("constraint", pgErr.ConstraintName).
				Wrap(listing.ErrConflict)
		case pgerrcode.CheckViolation, pgerrcode.NumericValueOutOfRange:
			return oops.Code(listing.CodeValidationFailed).
				With("id", id.String()).
				With("constraint", pgErr.ConstraintName).
				Wrapf(listing.ErrValidationFailed, "%s", pgErr.Message)
		}
	}
	return oops.With("operation", operation).With("id", id.String()).Wrap(err)
}

func notFound(id ulid.ULID) error {
	return oops.Code(listing.CodeNotFound).With("id", id.String()).Wrap(listing.ErrNotFound)
}

// images never sends NULL for the NOT NULL images column.
func images(handles []string) []string {
	if handles == nil {
		return []string{}
	}
	return handles
}

func scanProperty(row pgx.Row) (*listing.Property, error) {
	var (
		p       listing.Property
		id      string
		ownerID string
		status  string
	)
	if err := row.Scan(&id, &p.Title, &p.Description, &p.Location, &p.Price, &p.Images,
		&status, &ownerID, &p.Version, &p.DeletedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if p.ID, err = ulid.Parse(id); err != nil {
		return nil, oops.With("operation", "parse property id").With("id", id).Wrap(err)
	}
	if p.OwnerID, err = ulid.Parse(ownerID); err != nil {
		return nil, oops.With("operation", "parse owner id").With("owner_id", ownerID).Wrap(err)
	}
	p.Status = listing.Status(status)
	p.Images = images(p.Images)
	return &p, nil
}

func collectProperties(rows pgx.Rows) ([]*listing.Property, error) {
	defer rows.Close()
	items := []*listing.Property{}
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
