// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rentloop Contributors

package listing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rentloop/rentloop/internal/access"
	"github.com/rentloop/rentloop/internal/observability"
	"github.com/rentloop/rentloop/pkg/errutil"
)

var tracer = otel.Tracer("rentloop/listing")

// Paging limits.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
	MaxFavoriteIDs  = 100
)

// Authorizer decides whether an actor may act on a property.
// access.Policy is the production implementation.
type Authorizer interface {
	Allow(actor access.Actor, action access.Action, res access.Resource) access.Decision
}

// ServiceConfig holds dependencies for Service.
// Events and Cache are optional.
type ServiceConfig struct {
	Repo   Repository
	Media  MediaStore
	Policy Authorizer
	Events EventPublisher
	Cache  ListCache
	Logger *slog.Logger
	// Now overrides the clock; defaults to time.Now in UTC.
	Now func() time.Time
}

// Service orchestrates property operations.
// Every operation authorizes first, validates second, and persists through
// a single conditional write. Media side effects are performed around that
// write so a failed write never frees a handle the stored record still uses.
type Service struct {
	repo   Repository
	media  *mediaExecutor
	policy Authorizer
	events EventPublisher
	cache  ListCache
	logger *slog.Logger
	now    func() time.Time
	locks  *keyedMutex
}

// NewService creates a new Service with the given configuration.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	policy := cfg.Policy
	if policy == nil {
		policy = access.NewPolicy()
	}
	return &Service{
		repo:   cfg.Repo,
		media:  &mediaExecutor{store: cfg.Media, logger: logger},
		policy: policy,
		events: cfg.Events,
		cache:  cfg.Cache,
		logger: logger,
		now:    now,
		locks:  newKeyedMutex(),
	}
}

// CreateInput is the content of a new listing. Fields may be incomplete:
// completeness is only required at submission.
type CreateInput struct {
	Title       string
	Description string
	Location    string
	Price       float64
	Uploads     []Upload
}

// UpdateInput patches a draft. Nil fields are left unchanged.
//
// Keep lists the stored handles to retain. A nil Keep retains all of them;
// an empty non-nil Keep releases all of them.
type UpdateInput struct {
	Title       *string
	Description *string
	Location    *string
	Price       *float64
	Keep        []string
	Uploads     []Upload
}

// ListFilter narrows the public listing.
type ListFilter struct {
	Location string
	PriceMin *float64
	PriceMax *float64
}

// AdminFilter narrows the moderation listing.
type AdminFilter struct {
	Status         Status
	OwnerID        ulid.ULID
	IncludeDeleted bool
}

// Page is one page of a listing query.
type Page struct {
	Properties  []*Property
	Total       int
	TotalPages  int
	CurrentPage int
	PageSize    int
}

// Create stores a new draft owned by the actor.
//
// Uploads are attempted in order and failures are tolerated as long as one
// image is stored. If images were supplied and none could be stored the
// call fails with a validation error wrapping ErrStorageUnavailable.
func (s *Service) Create(ctx context.Context, actor access.Actor, in CreateInput) (p *Property, err error) {
	ctx, span := tracer.Start(ctx, "listing.Create")
	defer func() {
		endSpan(span, err)
		observability.RecordTransition("create", Kind(err))
	}()

	if err = s.authorize(actor, access.ActionCreate, access.Resource{}, ulid.ULID{}); err != nil {
		return nil, err
	}
	if err = validateContent(in.Title, in.Description, in.Location, in.Price); err != nil {
		return nil, invalid(err)
	}
	plan, err := PlanMedia(nil, []string{}, in.Uploads)
	if err != nil {
		return nil, invalid(err)
	}

	handles, err := s.media.uploadAll(ctx, plan.Uploads, true)
	if err != nil {
		return nil, oops.Code(CodeValidationFailed).
			With("uploads", len(plan.Uploads)).
			Wrap(fmt.Errorf("%w: no image could be stored: %w", ErrValidationFailed, err))
	}

	now := s.now()
	p = &Property{
		ID:          ulid.Make(),
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Location:    strings.TrimSpace(in.Location),
		Price:       in.Price,
		Images:      handles,
		Status:      StatusDraft,
		OwnerID:     actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	span.SetAttributes(attribute.String("property.id", p.ID.String()))

	if err = s.repo.Insert(ctx, p); err != nil {
		s.media.release(ctx, handles)
		return nil, oops.Wrapf(err, "create property %s", p.ID)
	}

	s.afterCommit(ctx, newLifecycleEvent(EventTypeCreated, p, actor.ID, now))
	return p, nil
}

// Update patches a draft and reconciles its images against in.Keep.
//
// Any upload failure aborts the update. Released handles are deleted only
// after the new record is committed; if the write loses a race the fresh
// uploads are deleted instead and ErrConflict is returned.
func (s *Service) Update(ctx context.Context, actor access.Actor, id ulid.ULID, in UpdateInput) (p *Property, err error) {
	ctx, span := tracer.Start(ctx, "listing.Update",
		trace.WithAttributes(attribute.String("property.id", id.String())))
	defer func() {
		endSpan(span, err)
		observability.RecordTransition("update", Kind(err))
	}()

	unlock := s.locks.Lock(id)
	defer unlock()

	cur, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	d := s.policy.Allow(actor, access.ActionUpdate, cur.Resource())
	if !d.IsAllowed() {
		if d.Reason == access.ReasonNotDraft {
			return nil, oops.Code(CodeInvalidTransition).
				With("property_id", id.String()).
				With("status", string(cur.Status)).
				Wrapf(ErrInvalidTransition, "content may only change while draft")
		}
		return nil, denied(id, access.ActionUpdate, d)
	}

	next := cur.Clone()
	if err = applyPatch(next, in); err != nil {
		return nil, invalid(err)
	}
	plan, err := PlanMedia(cur.Images, in.Keep, in.Uploads)
	if err != nil {
		return nil, invalid(err)
	}

	uploaded, err := s.media.uploadAll(ctx, plan.Uploads, false)
	if err != nil {
		return nil, oops.With("property_id", id.String()).Wrap(err)
	}
	images := make([]string, 0, len(plan.Keep)+len(uploaded))
	images = append(images, plan.Keep...)
	next.Images = append(images, uploaded...)
	next.UpdatedAt = s.now()

	if err = s.repo.UpdateIfVersion(ctx, next, cur.Version); err != nil {
		s.media.release(ctx, uploaded)
		return nil, oops.Wrapf(err, "update property %s", id)
	}
	s.media.release(ctx, plan.Delete)

	s.afterCommit(ctx, newLifecycleEvent(EventTypeUpdated, next, actor.ID, next.UpdatedAt))
	return next, nil
}

// Submit moves the actor's draft to moderation.
func (s *Service) Submit(ctx context.Context, actor access.Actor, id ulid.ULID) (*Property, error) {
	return s.transition(ctx, actor, id, EventSubmit, "")
}

// Approve publishes a pending property.
func (s *Service) Approve(ctx context.Context, actor access.Actor, id ulid.ULID) (*Property, error) {
	return s.transition(ctx, actor, id, EventApprove, "")
}

// Reject returns a pending property to draft. The reason is optional and
// only travels with the lifecycle event; it is not stored on the property.
func (s *Service) Reject(ctx context.Context, actor access.Actor, id ulid.ULID, reason string) (*Property, error) {
	return s.transition(ctx, actor, id, EventReject, strings.TrimSpace(reason))
}

// Archive hides a published property.
func (s *Service) Archive(ctx context.Context, actor access.Actor, id ulid.ULID) (*Property, error) {
	return s.transition(ctx, actor, id, EventArchive, "")
}

// Unarchive republishes an archived property.
func (s *Service) Unarchive(ctx context.Context, actor access.Actor, id ulid.ULID) (*Property, error) {
	return s.transition(ctx, actor, id, EventUnarchive, "")
}

// ToggleArchive archives a published property or unarchives an archived one,
// choosing from the status read immediately before dispatch.
func (s *Service) ToggleArchive(ctx context.Context, actor access.Actor, id ulid.ULID) (*Property, error) {
	cur, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	switch cur.Status {
	case StatusPublished:
		return s.Archive(ctx, actor, id)
	case StatusArchived:
		return s.Unarchive(ctx, actor, id)
	default:
		if err := s.authorize(actor, access.ActionArchive, cur.Resource(), id); err != nil {
			return nil, err
		}
		return nil, oops.Code(CodeInvalidTransition).
			With("property_id", id.String()).
			With("status", string(cur.Status)).
			Wrapf(ErrInvalidTransition, "only published or archived properties can be toggled")
	}
}

// SoftDelete hides a property from every default read. The record and its
// images are retained.
func (s *Service) SoftDelete(ctx context.Context, actor access.Actor, id ulid.ULID) (err error) {
	ctx, span := tracer.Start(ctx, "listing.SoftDelete",
		trace.WithAttributes(attribute.String("property.id", id.String())))
	defer func() {
		endSpan(span, err)
		observability.RecordTransition("delete", Kind(err))
	}()

	cur, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err = s.authorize(actor, access.ActionDelete, cur.Resource(), id); err != nil {
		return err
	}
	now := s.now()
	if err = s.repo.SoftDelete(ctx, id, cur.Version, now); err != nil {
		return oops.Wrapf(err, "delete property %s", id)
	}

	deleted := cur.Clone()
	deleted.DeletedAt = &now
	deleted.Version = cur.Version + 1
	s.afterCommit(ctx, newLifecycleEvent(EventTypeDeleted, deleted, actor.ID, now))
	return nil
}

// List returns published, non-deleted properties, newest first.
func (s *Service) List(ctx context.Context, f ListFilter, page, pageSize int) (res *Page, err error) {
	ctx, span := tracer.Start(ctx, "listing.List")
	defer func() { endSpan(span, err) }()

	page, pageSize = normalizePage(page, pageSize)
	if err = validatePriceRange(f.PriceMin, f.PriceMax); err != nil {
		return nil, invalid(err)
	}

	var slot string
	if s.cache != nil {
		var (
			cached *Page
			cerr   error
		)
		cached, slot, cerr = s.cache.GetPage(ctx, listCacheKey(f, page, pageSize))
		switch {
		case cerr != nil:
			observability.RecordCacheLookup("error")
			errutil.LogError(s.logger, "list cache lookup failed", cerr)
		case cached != nil:
			observability.RecordCacheLookup("hit")
			return cached, nil
		default:
			observability.RecordCacheLookup("miss")
		}
	}

	items, total, err := s.repo.Find(ctx, Query{
		Status:   StatusPublished,
		Location: strings.TrimSpace(f.Location),
		PriceMin: f.PriceMin,
		PriceMax: f.PriceMax,
		Offset:   (page - 1) * pageSize,
		Limit:    pageSize,
	})
	if err != nil {
		return nil, oops.Wrapf(err, "list properties")
	}
	res = newPage(items, total, page, pageSize)

	// The slot is taken before the read so an Invalidate in between
	// orphans this page instead of serving it.
	if s.cache != nil && slot != "" {
		if cerr := s.cache.SetPage(ctx, slot, res); cerr != nil {
			errutil.LogError(s.logger, "list cache store failed", cerr)
		}
	}
	return res, nil
}

// GetOwnProperties returns every non-deleted property the actor owns.
func (s *Service) GetOwnProperties(ctx context.Context, actor access.Actor) ([]*Property, error) {
	if err := s.authorize(actor, access.ActionListOwn, access.Resource{OwnerID: actor.ID}, ulid.ULID{}); err != nil {
		return nil, err
	}
	items, _, err := s.repo.Find(ctx, Query{OwnerID: actor.ID})
	if err != nil {
		return nil, oops.With("owner_id", actor.ID.String()).Wrapf(err, "list own properties")
	}
	return items, nil
}

// GetByID returns a property the actor may read.
// Soft-deleted properties are reported as not found to everyone.
func (s *Service) GetByID(ctx context.Context, actor access.Actor, id ulid.ULID) (*Property, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, access.ActionRead, p.Resource(), id); err != nil {
		return nil, err
	}
	return p, nil
}

// AdminList is the moderation query. It is the only read that can include
// soft-deleted properties.
func (s *Service) AdminList(ctx context.Context, actor access.Actor, f AdminFilter, page, pageSize int) (*Page, error) {
	if err := s.authorize(actor, access.ActionReadDeleted, access.Resource{}, ulid.ULID{}); err != nil {
		return nil, err
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, invalid(&ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", f.Status)})
	}
	page, pageSize = normalizePage(page, pageSize)
	items, total, err := s.repo.Find(ctx, Query{
		Status:         f.Status,
		OwnerID:        f.OwnerID,
		IncludeDeleted: f.IncludeDeleted,
		Offset:         (page - 1) * pageSize,
		Limit:          pageSize,
	})
	if err != nil {
		return nil, oops.Wrapf(err, "admin list properties")
	}
	return newPage(items, total, page, pageSize), nil
}

// ResolveFavorites maps a favorites list to the properties the actor can
// still see, in the order given. Missing, deleted and hidden ids are dropped.
func (s *Service) ResolveFavorites(ctx context.Context, actor access.Actor, ids []ulid.ULID) ([]*Property, error) {
	if len(ids) > MaxFavoriteIDs {
		return nil, invalid(&ValidationError{Field: "ids", Message: fmt.Sprintf("exceeds maximum count of %d", MaxFavoriteIDs)})
	}
	unique := make([]ulid.ULID, 0, len(ids))
	seen := make(map[ulid.ULID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return []*Property{}, nil
	}

	found, err := s.repo.FindByIDs(ctx, unique, false)
	if err != nil {
		return nil, oops.Wrapf(err, "resolve favorites")
	}
	byID := make(map[ulid.ULID]*Property, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}

	out := make([]*Property, 0, len(found))
	for _, id := range unique {
		p, ok := byID[id]
		if !ok {
			continue
		}
		if s.policy.Allow(actor, access.ActionRead, p.Resource()).IsAllowed() {
			out = append(out, p)
		}
	}
	return out, nil
}

// transition runs one row of the lifecycle table against the stored record.
func (s *Service) transition(ctx context.Context, actor access.Actor, id ulid.ULID, ev Event, reason string) (p *Property, err error) {
	ctx, span := tracer.Start(ctx, "listing."+string(ev),
		trace.WithAttributes(attribute.String("property.id", id.String())))
	defer func() {
		endSpan(span, err)
		observability.RecordTransition(string(ev), Kind(err))
	}()

	cur, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err = s.authorize(actor, eventAction(ev), cur.Resource(), id); err != nil {
		return nil, err
	}
	next, err := Transition(cur, ev)
	if err != nil {
		return nil, err
	}
	next.UpdatedAt = s.now()
	if err = s.repo.UpdateIfVersion(ctx, next, cur.Version); err != nil {
		return nil, oops.Wrapf(err, "%s property %s", ev, id)
	}

	if reason != "" {
		s.logger.InfoContext(ctx, "lifecycle transition with reason",
			"event", string(ev), "property_id", id.String(), "reason", reason)
	}
	evt := newLifecycleEvent(eventTypes[ev], next, actor.ID, next.UpdatedAt)
	evt.Reason = reason
	s.afterCommit(ctx, evt)
	return next, nil
}

// load reads a live property.
func (s *Service) load(ctx context.Context, id ulid.ULID) (*Property, error) {
	p, err := s.repo.Get(ctx, id, false)
	if err != nil {
		return nil, oops.Wrapf(err, "load property %s", id)
	}
	return p, nil
}

func (s *Service) authorize(actor access.Actor, action access.Action, res access.Resource, id ulid.ULID) error {
	d := s.policy.Allow(actor, action, res)
	if d.IsAllowed() {
		return nil
	}
	return denied(id, action, d)
}

// afterCommit runs the best-effort follow-ups of a committed change.
func (s *Service) afterCommit(ctx context.Context, ev LifecycleEvent) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			errutil.LogError(s.logger, "list cache invalidation failed", err)
		}
	}
	if s.events != nil {
		if err := s.events.Publish(ctx, ev); err != nil {
			errutil.LogError(s.logger, "lifecycle event publish failed",
				oops.With("event", string(ev.Type)).With("property_id", ev.PropertyID.String()).Wrap(err))
		}
	}
}

func denied(id ulid.ULID, action access.Action, d access.Decision) error {
	b := oops.Code(CodeAccessDenied).
		With("action", string(action)).
		With("reason", d.Reason)
	if !id.IsZero() {
		b = b.With("property_id", id.String())
	}
	return b.Wrap(ErrUnauthorized)
}

func invalid(err error) error {
	return oops.Code(CodeValidationFailed).Wrap(err)
}

func validateContent(title, description, location string, price float64) error {
	if err := ValidateTitle(title); err != nil {
		return err
	}
	if err := ValidateDescription(description); err != nil {
		return err
	}
	if err := ValidateLocation(location); err != nil {
		return err
	}
	return ValidatePrice(price)
}

func applyPatch(p *Property, in UpdateInput) error {
	if in.Title != nil {
		if err := ValidateTitle(*in.Title); err != nil {
			return err
		}
		p.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		if err := ValidateDescription(*in.Description); err != nil {
			return err
		}
		p.Description = *in.Description
	}
	if in.Location != nil {
		if err := ValidateLocation(*in.Location); err != nil {
			return err
		}
		p.Location = strings.TrimSpace(*in.Location)
	}
	if in.Price != nil {
		if err := ValidatePrice(*in.Price); err != nil {
			return err
		}
		p.Price = *in.Price
	}
	return nil
}

// renameField reports err against field, copying a ValidationError so the
// original is left untouched.
func renameField(err error, field string) error {
	var verr *ValidationError
	if !errors.As(err, &verr) {
		return &ValidationError{Field: field, Message: err.Error()}
	}
	c := *verr
	c.Field = field
	return &c
}

func validatePriceRange(lo, hi *float64) error {
	if lo != nil {
		if err := ValidatePrice(*lo); err != nil {
			return renameField(err, "priceMin")
		}
	}
	if hi != nil {
		if err := ValidatePrice(*hi); err != nil {
			return renameField(err, "priceMax")
		}
	}
	if lo != nil && hi != nil && *lo > *hi {
		return &ValidationError{Field: "priceMin", Message: "cannot exceed priceMax"}
	}
	return nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

func newPage(items []*Property, total, page, pageSize int) *Page {
	if items == nil {
		items = []*Property{}
	}
	return &Page{
		Properties:  items,
		Total:       total,
		TotalPages:  (total + pageSize - 1) / pageSize,
		CurrentPage: page,
		PageSize:    pageSize,
	}
}

func listCacheKey(f ListFilter, page, pageSize int) string {
	bound := func(v *float64) string {
		if v == nil {
			return "-"
		}
		return strconv.FormatFloat(*v, 'f', 2, 64)
	}
	return fmt.Sprintf("loc=%s|min=%s|max=%s|page=%d|size=%d",
		strings.ToLower(strings.TrimSpace(f.Location)), bound(f.PriceMin), bound(f.PriceMax), page, pageSize)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
