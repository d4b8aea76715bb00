// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rentloop Contributors

// Package media stores listing images in MongoDB GridFS.
//
// A handle is the hex ObjectID of the stored file. Handles are opaque to the
// listing service; only this package parses them.
package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rentloop/rentloop/internal/listing"
	"github.com/rentloop/rentloop/internal/observability"
)

// ErrNotFound is returned by Open for an unknown handle.
var ErrNotFound = errors.New("media not found")

// Config configures a Store.
type Config struct {
	// Bucket is the GridFS bucket name. Defaults to "images".
	Bucket string
	// Attempts bounds retries of each upload and delete. Defaults to 3.
	Attempts uint64
	// Backoff is the first retry delay. Defaults to 100ms.
	Backoff time.Duration
	Logger  *slog.Logger
}

// blobBucket is the subset of GridFS the Store needs.
type blobBucket interface {
	upload(ctx context.Context, name, contentType string, r io.Reader) (primitive.ObjectID, error)
	remove(ctx context.Context, id primitive.ObjectID) error
	open(ctx context.Context, id primitive.ObjectID) (io.ReadCloser, string, error)
}

// Store implements listing.MediaStore on GridFS.
type Store struct {
	bucket   blobBucket
	attempts uint64
	backoff  time.Duration
	logger   *slog.Logger
}

var _ listing.MediaStore = (*Store)(nil)

// NewStore creates a Store over db.
func NewStore(db *mongo.Database, cfg Config) (*Store, error) {
	name := cfg.Bucket
	if name == "" {
		name = "images"
	}
	b, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(name))
	if err != nil {
		return nil, oops.Code("MEDIA_BUCKET_FAILED").With("bucket", name).Wrap(err)
	}
	return newStore(&gridfsBucket{b: b}, cfg), nil
}

func newStore(b blobBucket, cfg Config) *Store {
	s := &Store{bucket: b, attempts: cfg.Attempts, backoff: cfg.Backoff, logger: cfg.Logger}
	if s.attempts == 0 {
		s.attempts = 3
	}
	if s.backoff <= 0 {
		s.backoff = 100 * time.Millisecond
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Upload stores data and returns its handle.
func (s *Store) Upload(ctx context.Context, data []byte, contentType string) (handle string, err error) {
	defer func() { observability.RecordMediaOperation("upload", err) }()

	name := uuid.NewString() + extension(contentType)
	var id primitive.ObjectID
	err = s.retry(ctx, "upload", func(ctx context.Context) error {
		var uerr error
		id, uerr = s.bucket.upload(ctx, name, contentType, bytes.NewReader(data))
		return uerr
	})
	if err != nil {
		return "", oops.Code(listing.CodeMediaUpload).
			With("filename", name).
			With("bytes", len(data)).
			Wrap(err)
	}
	return id.Hex(), nil
}

// Delete removes handle. Unknown and malformed handles are already absent,
// so deleting them succeeds.
func (s *Store) Delete(ctx context.Context, handle string) (err error) {
	defer func() { observability.RecordMediaOperation("delete", err) }()

	id, perr := primitive.ObjectIDFromHex(handle)
	if perr != nil {
		return nil
	}
	err = s.retry(ctx, "delete", func(ctx context.Context) error {
		derr := s.bucket.remove(ctx, id)
		if errors.Is(derr, gridfs.ErrFileNotFound) {
			return nil
		}
		return derr
	})
	if err != nil {
		return oops.Code(listing.CodeMediaDelete).With("handle", handle).Wrap(err)
	}
	return nil
}

// Open streams the image stored under handle with its content type.
func (s *Store) Open(ctx context.Context, handle string) (io.ReadCloser, string, error) {
	id, err := primitive.ObjectIDFromHex(handle)
	if err != nil {
		return nil, "", oops.With("handle", handle).Wrap(ErrNotFound)
	}
	rc, contentType, err := s.bucket.open(ctx, id)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return nil, "", oops.With("handle", handle).Wrap(ErrNotFound)
	}
	if err != nil {
		return nil, "", oops.With("operation", "open media").With("handle", handle).Wrap(err)
	}
	return rc, contentType, nil
}

func (s *Store) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	b := retry.WithMaxRetries(s.attempts-1, retry.WithJitterPercent(20, retry.NewExponential(s.backoff)))
	attempt := 0
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		s.logger.WarnContext(ctx, "media operation failed", "op", op, "attempt", attempt, "error", err)
		return retry.RetryableError(err)
	})
}

func extension(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ""
	}
}

// gridfsBucket adapts *gridfs.Bucket to blobBucket.
type gridfsBucket struct {
	b *gridfs.Bucket
}

func (g *gridfsBucket) upload(ctx context.Context, name, contentType string, r io.Reader) (primitive.ObjectID, error) {
	opts := options.GridFSUpload().SetMetadata(bson.D{{Key: "contentType", Value: contentType}})
	stream, err := g.b.OpenUploadStream(name, opts)
	if err != nil {
		return primitive.NilObjectID, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := stream.SetWriteDeadline(deadline); err != nil {
			_ = stream.Abort()
			return primitive.NilObjectID, err
		}
	}
	if _, err := io.Copy(stream, r); err != nil {
		_ = stream.Abort()
		return primitive.NilObjectID, err
	}
	if err := stream.Close(); err != nil {
		return primitive.NilObjectID, err
	}
	id, ok := stream.FileID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, oops.Errorf("unexpected gridfs file id type %T", stream.FileID)
	}
	return id, nil
}

func (g *gridfsBucket) remove(ctx context.Context, id primitive.ObjectID) error {
	return g.b.DeleteContext(ctx, id)
}

func (g *gridfsBucket) open(ctx context.Context, id primitive.ObjectID) (io.ReadCloser, string, error) {
	stream, err := g.b.OpenDownloadStream(id)
	if err != nil {
		return nil, "", err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = stream.SetReadDeadline(deadline)
	}
	contentType := "application/octet-stream"
	if meta := stream.GetFile().Metadata; meta != nil {
		if v, ok := meta.Lookup("contentType").StringValueOK(); ok {
			contentType = v
		}
	}
	return stream, contentType, nil
}
