// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rentloop Contributors

package listing_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rentloop/rentloop/internal/access"
	"github.com/rentloop/rentloop/internal/listing"
	"github.com/rentloop/rentloop/internal/listing/listingtest"
	"github.com/rentloop/rentloop/pkg/errutil"
)

type fixture struct {
	svc    *listing.Service
	repo   *listingtest.Repository
	media  *listingtest.MediaStore
	owner  access.Actor
	admin  access.Actor
	renter access.Actor
	clock  time.Time
}

func newFixture(t *testing.T, opts ...func(*listing.ServiceConfig)) *fixture {
	t.Helper()
	f := &fixture{
		repo:   listingtest.NewRepository(),
		media:  listingtest.NewMediaStore(),
		owner:  access.Actor{ID: ulid.Make(), Role: access.RoleOwner},
		admin:  access.Actor{ID: ulid.Make(), Role: access.RoleAdmin},
		renter: access.Actor{ID: ulid.Make(), Role: access.RoleUser},
		clock:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	cfg := listing.ServiceConfig{
		Repo:   f.repo,
		Media:  f.media,
		Policy: access.NewPolicy(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now: func() time.Time {
			f.clock = f.clock.Add(time.Second)
			return f.clock
		},
	}
	for _, o := range opts {
		o(&cfg)
	}
	f.svc = listing.NewService(cfg)
	return f
}

// seed stores a complete property owned by f.owner.
func (f *fixture) seed(status listing.Status, images ...string) *listing.Property {
	f.clock = f.clock.Add(time.Minute)
	p := &listing.Property{
		ID:          ulid.Make(),
		Title:       "Sunny loft",
		Description: "Two rooms near the river",
		Location:    "Lisbon, Alfama",
		Price:       1200,
		Images:      images,
		Status:      status,
		OwnerID:     f.owner.ID,
		Version:     1,
		CreatedAt:   f.clock,
		UpdatedAt:   f.clock,
	}
	if p.Images == nil {
		p.Images = []string{}
	}
	for _, h := range images {
		f.media.Seed(h, []byte(h))
	}
	f.repo.Put(p)
	return p
}

func (f *fixture) stored(t *testing.T, id ulid.ULID) *listing.Property {
	t.Helper()
	p, err := f.repo.Get(context.Background(), id, true)
	require.NoError(t, err)
	return p
}

func img(name string) listing.Upload {
	return listing.Upload{Filename: name, ContentType: "image/png", Data: []byte("png:" + name)}
}

func strPtr(s string) *string { return &s }

func floatPtr(v float64) *float64 { return &v }

func TestService_Create(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Create(ctx, f.owner, listing.CreateInput{
		Title:    "  Sunny loft ",
		Location: "Lisbon",
		Price:    900,
		Uploads:  []listing.Upload{img("a.png"), img("b.png")},
	})
	require.NoError(t, err)

	assert.Equal(t, listing.StatusDraft, p.Status)
	assert.Equal(t, "Sunny loft", p.Title)
	assert.Equal(t, f.owner.ID, p.OwnerID)
	assert.Equal(t, int64(1), p.Version)
	assert.Equal(t, f.media.Uploaded(), p.Images)
	assert.Len(t, p.Images, 2)
	assert.Equal(t, p.Images, f.stored(t, p.ID).Images)
}

func TestService_Create_RequiresOwnerRole(t *testing.T) {
	f := newFixture(t)

	for _, actor := range []access.Actor{f.admin, f.renter, {}} {
		_, err := f.svc.Create(context.Background(), actor, listing.CreateInput{
			Title:   "x",
			Uploads: []listing.Upload{img("a.png")},
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, listing.ErrUnauthorized)
		errutil.AssertErrorCode(t, err, listing.CodeAccessDenied)
	}
	assert.Zero(t, f.media.UploadCalls(), "no media call before authorization")
}

func TestService_Create_ImageCapIsPreflight(t *testing.T) {
	f := newFixture(t)
	uploads := make([]listing.Upload, listing.MaxImages+1)
	for i := range uploads {
		uploads[i] = img(fmt.Sprintf("%d.png", i))
	}

	_, err := f.svc.Create(context.Background(), f.owner, listing.CreateInput{Title: "x", Uploads: uploads})
	assert.ErrorIs(t, err, listing.ErrValidationFailed)
	assert.Zero(t, f.media.UploadCalls())
}

func TestService_Create_ToleratesPartialUploadFailure(t *testing.T) {
	f := newFixture(t)
	f.media.FailUploads = map[int]bool{1: true}

	p, err := f.svc.Create(context.Background(), f.owner, listing.CreateInput{
		Title:   "x",
		Uploads: []listing.Upload{img("a.png"), img("b.png"), img("c.png")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"img-1", "img-2"}, p.Images)
	assert.Equal(t, 3, f.media.UploadCalls())
}

func TestService_Create_AllUploadsFail(t *testing.T) {
	f := newFixture(t)
	f.media.FailAllUploads = true

	_, err := f.svc.Create(context.Background(), f.owner, listing.CreateInput{
		Title:   "x",
		Uploads: []listing.Upload{img("a.png"), img("b.png")},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, listing.ErrValidationFailed)
	assert.ErrorIs(t, err, listing.ErrStorageUnavailable)
	assert.Equal(t, "validation_failed", listing.Kind(err))

	page, err := f.svc.AdminList(context.Background(), f.admin, listing.AdminFilter{IncludeDeleted: true}, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, page.Total, "nothing persisted")
}

func TestService_Create_WithoutImages(t *testing.T) {
	f := newFixture(t)

	p, err := f.svc.Create(context.Background(), f.owner, listing.CreateInput{Title: "x"})
	require.NoError(t, err)
	assert.NotNil(t, p.Images)
	assert.Empty(t, p.Images)
}

func TestService_Create_InvalidContent(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), f.owner, listing.CreateInput{Title: "x", Price: -5})
	assert.ErrorIs(t, err, listing.ErrValidationFailed)
	errutil.AssertErrorCode(t, err, listing.CodeValidationFailed)
}

func TestService_Update_ReconcilesImages(t *testing.T) {
	f := newFixture(t)
	p := f.seed(listing.StatusDraft, "img1", "img2")

	updated, err := f.svc.Update(context.Background(), f.owner, p.ID, listing.UpdateInput{
		Keep:    []string{"img1"},
		Uploads: []listing.Upload{img("new.png")},
	})
	require.NoError(t, err)

	newHandle := f.media.Uploaded()[0]
	assert.Equal(t, []string{"img1", newHandle}, updated.Images)
	assert.Equal(t, []string{"img2"}, f.media.Deleted())
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, updated.Images, f.stored(t, p.ID).Images)
}

func TestService_Update_KeepsStoredOrder(t *testing.T) {
	f := newFixture(t)
	p := f.seed(listing.StatusDraft, "a", "b", "c")

	updated, err := f.svc.Update(context.Background(), f.owner, p.ID, listing.UpdateInput{Keep: []string{"c", "a"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, updated.Images)
	assert.Equal(t, []string{"b"}, f.media.Deleted())
}

func TestService_Update_IdenticalKeepIsIdempotent(t *testing.T) {
	f := newFixture(t)
	p := f.seed(listing.StatusDraft, "a", "b")
	in := listing.UpdateInput{Keep: []string{"a", "b"}, Title: strPtr("Renamed")}

	first, err := f.svc.Update(context.Background(), f.owner, p.ID, in)
	require.NoError(t, err)
	second, err := f.svc.Update(context.Background(), f.owner, p.ID, in)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, first.Images)
	assert.Equal(t, []string{"a", "b"}, second.Images)
	assert.Empty(t, f.media.Deleted())
	assert.Zero(t, f.media.UploadCalls())
}

func TestService_Update_PatchesFields(t *testing.T) {
	f := newFixture(t)
	p := f.seed(listing.StatusDraft, "a")

	updated, err := f.svc.Update(context.Background(), f.owner, p.ID, listing.UpdateInput{
		Title:    strPtr("Penthouse"),
		Price:    floatPtr(2500),
		Location: strPtr(" Porto "),
	})
	require.NoError(t, err)
	assert.Equal(t, "Penthouse", updated.Title)
	assert.Equal(t, "Porto", updated.Location)
	assert.InDelta(t, 2500, updated.Price, 0.001)
	assert.Equal(t, p.Description, updated.Description)
	assert.Equal(t, []string{"a"}, updated.Images, "nil keep retains images")
}

func TestService_Update_RejectsNonDraft(t *testing.T) {
	for _, status := range []listing.Status{listing.StatusPending, listing.StatusPublished, listing.StatusArchived} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			p := f.seed(status, "a")

			_, err := f.svc.Update(context.Background(), f.owner, p.ID, listing.UpdateInput{Title: strPtr("x")})
			assert.ErrorIs(t, err, listing.ErrInvalidTransition)
			assert.Equal(t, p.Title, f.stored(t, p.ID).Title)
		})
	}
}

func TestService_Update_RejectsStrangers(t *testing.T) {
	f := newFixture(t)
	p := f.seed(listing.StatusDraft, "a")
	other := access.Actor{ID: ulid.Make(), Role: access.RoleOwner}

	for _, actor := range []access.Actor{other, f.admin, f.renter} {
		_, err := f.svc.Update(context.Background(), actor, p.ID, listing.UpdateInput{
			Keep:    []string{},
			Uploads: []listing.Upload{img("x.png")},
		})
		assert.ErrorIs(t, err, listing.ErrUnauthorized)
	}
	assert.Zero(t, f.media.UploadCalls())
	assert.Empty(t, f.media.Deleted())
}

func TestService_Update_UploadFailureAborts(t *testing.T) {
	f := newFixture(t)
	p := f.seed(listing.StatusDraft, "a", "b")
	f.media.FailUploads = map[int]bool{1: true}

	_, err := f.svc.Update(context.Background(), f.owner, p.ID, listing.UpdateInput{
		Keep:    []string{"a"},
		Uploads: []listing.Upload{img("x.png"), img("y.png")},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, listing.ErrStorageUnavailable)
	errutil.AssertErrorCode(t, err, listing.CodeMediaUpload)

	stored := f.stored(t, p.ID)
	assert.Equal(t, []string{"a", "b"}, stored.Images)
	assert.Equal(t, int64(1), stored.Version)
	assert.Equal(t, []string{"img-1"}, f.media.Deleted(), "only the orphaned upload is released")
}

func TestService_Update_ImageCap(t *testing.T) {
	f := newFixture(t)
	p := f.seed(listing.StatusDraft, "a", "b", "c", "d", "e")

	_, err := f.svc.Update(context.Background(), f.owner, p.ID, listing.UpdateInput{
		Uploads: []listing.Upload{img("x.png"), img("y.png")},
	})
	assert.ErrorIs(t, err, listing.ErrValidationFailed)
	assert.Zero(t, f.media.UploadCalls())
	assert.Empty(t, f.media.Deleted())
}

func TestService_Update_ConflictReleasesNewUploadsOnly(t *testing.T) {
	f := newFixture(t)
	p := f.seed(listing.StatusDraft, "a", "b")

	// A concurrent writer commits between our read and our write.
	f.repo.BeforeWrite = func(id ulid.ULID) {
		f.repo.BeforeWrite = nil
		racer := f.stored(t, id)
		racer.Title = "someone else"
		require.NoError(t, f.repo.UpdateIfVersion(context.Background(), racer, racer.Version))
	}

	_, err := f.svc.Update(context.Background(), f.owner, p.ID, listing.UpdateInput{
		Keep:    []string{"a"},
		Uploads: []listing.Upload{img("x.png")},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, listing.ErrConflict)
	errutil.AssertErrorCode(t, err, listing.CodeVersionConflict)

	assert.Equal(t, f.media.Uploaded(), f.media.Deleted(), "fresh upload released")
	assert.True(t, f.media.Has("b"), "handle still referenced by the stored record survives")
	assert.Equal(t, []string{"a", "b"}, f.stored(t, p.ID).Images)
}

func TestService_Update_DeleteFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	p := f.seed(listing.StatusDraft, "a", "b")
	f.media.FailDeletes = true

	updated, err := f.svc.Update(context.Background(), f.owner, p.ID, listing.UpdateInput{Keep: []string{"b"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, updated.Images)
	assert.Equal(t, []string{"a"}, f.media.Deleted())
}

func TestService_Update_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Update(context.Background(), f.owner, ulid.Make(), listing.UpdateInput{})
	assert.ErrorIs(t, err, listing.ErrNotFound)
	errutil.AssertErrorCode(t, err, listing.CodeNotFound)
}

func TestService_Submit_RequiresCompleteContent(t *testing.T) {
	f := newFixture(t)
	p := f.seed(listing.StatusDraft, "a")
	p.Price = 0
	f.repo.Put(p)

	_, err := f.svc.Submit(context.Background(), f.owner, p.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, listing.ErrValidationFailed)
	assert.Equal(t, listing.StatusDraft, f.stored(t, p.ID).Status)
}

func TestService_Submit_OnlyOwner(t *testing.T) {
	f := newFixture(t)
	p := f.seed(listing.StatusDraft, "a")

	_, err := f.svc.Submit(context.Background(), f.admin, p.ID)
	assert.ErrorIs(t, err, listing.ErrUnauthorized)

	_, err = f.svc.Submit(context.Background(), access.Actor{ID: ulid.Make(), Role: access.RoleOwner}, p.ID)
	assert.ErrorIs(t, err, listing.ErrUnauthorized)
}

func TestService_Approve_RequiresPending(t *testing.T) {
	for _, status := range []listing.Status{listing.StatusDraft, listing.StatusPublished, listing.StatusArchived} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			p := f.seed(status, "a")

			_, err := f.svc.Approve(context.Background(), f.admin, p.ID)
			assert.ErrorIs(t, err, listing.ErrInvalidTransition)
			assert.Equal(t, status, f.stored(t, p.ID).Status)

			_, err = f.svc.Reject(context.Background(), f.admin, p.ID, "")
			assert.ErrorIs(t, err, listing.ErrInvalidTransition)
		})
	}
}

func TestService_Approve_OnlyAdmin(t *testing.T) {
	f := newFixture(t)
	p := f.seed(listing.StatusPending, "a")

	_, err := f.svc.Approve(context.Background(), f.owner, p.ID)
	assert.ErrorIs(t, err, listing.ErrUnauthorized)
	assert.Equal(t, listing.StatusPending, f.stored(t, p.ID).Status)
}

func TestService_Reject_ReturnsToDraft(t *testing.T) {
	pub := &listingtest.MockEventPublisher{}
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(ev listing.LifecycleEvent) bool {
		return ev.Type == listing.EventTypeRejected && ev.Reason == "blurry photos"
	})).Return(nil).Once()

	f := newFixture(t, func(c *listing.ServiceConfig) { c.Events = pub })
	p := f.seed(listing.StatusPending, "a")

	rejected, err := f.svc.Reject(context.Background(), f.admin, p.ID, " blurry photos ")
	require.NoError(t, err)
	assert.Equal(t, listing.StatusDraft, rejected.Status)
	pub.AssertExpectations(t)
}

func TestService_ConcurrentModeration(t *testing.T) {
	f := newFixture(t)
	p := f.seed(listing.StatusPending, "a")

	// Hold both writers until each has read the same version.
	var arrived sync.WaitGroup
	arrived.Add(2)
	f.repo.BeforeWrite = func(ulid.ULID) {
		arrived.Done()
		arrived.Wait()
	}

	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = f.svc.Approve(context.Background(), f.admin, p.ID)
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = f.svc.Reject(context.Background(), f.admin, p.ID, "")
	}()
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, listing.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)
	assert.Equal(t, int64(2), f.stored(t, p.ID).Version)
}

func TestService_PublishFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Create(ctx, f.owner, listing.CreateInput{
		Title:       "Sea view studio",
		Description: "Balcony, fully furnished",
		Location:    "Lisbon, Belém",
		Price:       1100,
		Uploads:     []listing.Upload{img("a.png"), img("b.png")},
	})
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, f.owner, p.ID)
	require.NoError(t, err)

	page, err := f.svc.List(ctx, listing.ListFilter{Location: "lisbon"}, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Properties, "pending listings are not public")

	published, err := f.svc.Approve(ctx, f.admin, p.ID)
	require.NoError(t, err)
	assert.Equal(t, listing.StatusPublished, published.Status)
	assert.NotEmpty(t, published.Images)
	assert.NotEmpty(t, published.Title)
	assert.Positive(t, published.Price)

	page, err = f.svc.List(ctx, listing.ListFilter{Location: "LISBON"}, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Properties, 1)
	assert.Equal(t, p.ID, page.Properties[0].ID)
}

func TestService_ToggleArchive(t *testing.T) {
	f := newFixture(t)
	p := f.seed(listing.StatusPublished, "a")
	ctx := context.Background()

	archived, err := f.svc.ToggleArchive(ctx, f.admin, p.ID)
	require.NoError(t, err)
	assert.Equal(t, listing.StatusArchived, archived.Status)

	restored, err := f.svc.ToggleArchive(ctx, f.admin, p.ID)
	require.NoError(t, err)
	assert.Equal(t, listing.StatusPublished, restored.Status)

	_, err = f.svc.ToggleArchive(ctx, f.owner, p.ID)
	assert.ErrorIs(t, err, listing.ErrUnauthorized)

	draft := f.seed(listing.StatusDraft, "b")
	_, err = f.svc.ToggleArchive(ctx, f.admin, draft.ID)
	assert.ErrorIs(t, err, listing.ErrInvalidTransition)
}

func TestService_SoftDelete(t *testing.T) {
	f := newFixture(t)
	p := f.seed(listing.StatusPublished, "a")
	ctx := context.Background()

	require.NoError(t, f.svc.SoftDelete(ctx, f.owner, p.ID))

	page, err := f.svc.List(ctx, listing.ListFilter{}, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Properties)

	_, err = f.svc.GetByID(ctx, f.renter, p.ID)
	assert.ErrorIs(t, err, listing.ErrNotFound)
	_, err = f.svc.GetByID(ctx, f.owner, p.ID)
	assert.ErrorIs(t, err, listing.ErrNotFound)

	own, err := f.svc.GetOwnProperties(ctx, f.owner)
	require.NoError(t, err)
	assert.Empty(t, own)

	raw, err := f.svc.AdminList(ctx, f.admin, listing.AdminFilter{IncludeDeleted: true}, 1, 10)
	require.NoError(t, err)
	require.Len(t, raw.Properties, 1)
	assert.True(t, raw.Properties[0].IsDeleted())
	assert.Equal(t, listing.StatusPublished, raw.Properties[0].Status, "status is unchanged by deletion")

	assert.True(t, f.media.Has("a"), "images are retained")

	err = f.svc.SoftDelete(ctx, f.owner, p.ID)
	assert.ErrorIs(t, err, listing.ErrNotFound)

	_, err = f.svc.Approve(ctx, f.admin, p.ID)
	assert.ErrorIs(t, err, listing.ErrNotFound)
}

func TestService_SoftDelete_Authorization(t *testing.T) {
	f := newFixture(t)
	p := f.seed(listing.StatusDraft, "a")
	ctx := context.Background()

	err := f.svc.SoftDelete(ctx, f.renter, p.ID)
	assert.ErrorIs(t, err, listing.ErrUnauthorized)
	err = f.svc.SoftDelete(ctx, access.Actor{ID: ulid.Make(), Role: access.RoleOwner}, p.ID)
	assert.ErrorIs(t, err, listing.ErrUnauthorized)

	require.NoError(t, f.svc.SoftDelete(ctx, f.admin, p.ID))
}

func TestService_GetByID_Visibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	draft := f.seed(listing.StatusDraft, "a")
	published := f.seed(listing.StatusPublished, "b")

	_, err := f.svc.GetByID(ctx, access.Actor{}, published.ID)
	assert.NoError(t, err)

	_, err = f.svc.GetByID(ctx, f.renter, draft.ID)
	assert.ErrorIs(t, err, listing.ErrUnauthorized)

	_, err = f.svc.GetByID(ctx, f.owner, draft.ID)
	assert.NoError(t, err)

	_, err = f.svc.GetByID(ctx, f.admin, draft.ID)
	assert.NoError(t, err)

	_, err = f.svc.GetByID(ctx, f.renter, ulid.Make())
	assert.ErrorIs(t, err, listing.ErrNotFound)
}

func TestService_GetOwnProperties(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	older := f.seed(listing.StatusDraft)
	newer := f.seed(listing.StatusArchived, "a")

	other := newFixture(t)
	other.repo = f.repo
	other.seed(listing.StatusPublished, "z")

	own, err := f.svc.GetOwnProperties(ctx, f.owner)
	require.NoError(t, err)
	require.Len(t, own, 2)
	assert.Equal(t, newer.ID, own[0].ID)
	assert.Equal(t, older.ID, own[1].ID)

	_, err = f.svc.GetOwnProperties(ctx, f.renter)
	assert.ErrorIs(t, err, listing.ErrUnauthorized)
}

func TestService_List_Pagination(t *testing.T) {
	f := newFixture(t)
	for range 12 {
		f.seed(listing.StatusPublished, "a")
	}
	f.seed(listing.StatusDraft, "a")

	page, err := f.svc.List(context.Background(), listing.ListFilter{}, 3, 5)
	require.NoError(t, err)
	assert.Equal(t, 12, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 3, page.CurrentPage)
	assert.Len(t, page.Properties, 2)

	page, err = f.svc.List(context.Background(), listing.ListFilter{}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.CurrentPage)
	assert.Equal(t, listing.DefaultPageSize, page.PageSize)
	assert.Len(t, page.Properties, 10)
}

func TestService_List_PriceRange(t *testing.T) {
	f := newFixture(t)
	cheap := f.seed(listing.StatusPublished, "a")
	cheap.Price = 500
	f.repo.Put(cheap)
	f.seed(listing.StatusPublished, "b") // 1200

	page, err := f.svc.List(context.Background(), listing.ListFilter{PriceMin: floatPtr(500), PriceMax: floatPtr(500)}, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Properties, 1)
	assert.Equal(t, cheap.ID, page.Properties[0].ID)

	_, err = f.svc.List(context.Background(), listing.ListFilter{PriceMin: floatPtr(900), PriceMax: floatPtr(100)}, 1, 10)
	assert.ErrorIs(t, err, listing.ErrValidationFailed)
}

func TestService_List_PriceBoundErrorsNameTheBound(t *testing.T) {
	tests := []struct {
		name      string
		filter    listing.ListFilter
		wantField string
		wantMsg   string
	}{
		{"negative min", listing.ListFilter{PriceMin: floatPtr(-1)}, "priceMin", "cannot be negative"},
		{"infinite max", listing.ListFilter{PriceMax: floatPtr(math.Inf(1))}, "priceMax", "must be a finite number"},
		{"inverted", listing.ListFilter{PriceMin: floatPtr(9), PriceMax: floatPtr(1)}, "priceMin", "cannot exceed priceMax"},
	}
	f := newFixture(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.List(context.Background(), tt.filter, 1, 10)
			require.ErrorIs(t, err, listing.ErrValidationFailed)
			errutil.AssertErrorCode(t, err, listing.CodeValidationFailed)
			var verr *listing.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
			assert.Equal(t, tt.wantMsg, verr.Message)
		})
	}
}

func TestService_List_UsesCache(t *testing.T) {
	cache := &listingtest.MockListCache{}
	cached := &listing.Page{Properties: []*listing.Property{}, Total: 42, CurrentPage: 1, PageSize: 10, TotalPages: 5}
	cache.On("GetPage", mock.Anything, mock.AnythingOfType("string")).Return(cached, "slot", nil).Once()

	f := newFixture(t, func(c *listing.ServiceConfig) { c.Cache = cache })

	page, err := f.svc.List(context.Background(), listing.ListFilter{Location: "x"}, 1, 10)
	require.NoError(t, err)
	assert.Same(t, cached, page)
	cache.AssertExpectations(t)
}

func TestService_List_FillsCacheOnMiss(t *testing.T) {
	tests := []struct {
		name      string
		slot      string
		lookupErr error
		wantStore bool
	}{
		{"miss", "gen-3:abc", nil, true},
		{"page read failed", "gen-3:abc", errors.New("redis down"), true},
		{"generation unknown", "", errors.New("redis down"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := &listingtest.MockListCache{}
			cache.On("GetPage", mock.Anything, mock.AnythingOfType("string")).Return(nil, tt.slot, tt.lookupErr).Once()
			if tt.wantStore {
				cache.On("SetPage", mock.Anything, tt.slot, mock.AnythingOfType("*listing.Page")).Return(nil).Once()
			}

			f := newFixture(t, func(c *listing.ServiceConfig) { c.Cache = cache })
			f.seed(listing.StatusPublished, "a")

			page, err := f.svc.List(context.Background(), listing.ListFilter{}, 1, 10)
			require.NoError(t, err)
			assert.Len(t, page.Properties, 1)
			cache.AssertExpectations(t)
			if !tt.wantStore {
				cache.AssertNotCalled(t, "SetPage", mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestService_MutationsInvalidateCacheAndPublish(t *testing.T) {
	cache := &listingtest.MockListCache{}
	cache.On("Invalidate", mock.Anything).Return(errors.New("redis down")).Once()
	pub := &listingtest.MockEventPublisher{}
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(ev listing.LifecycleEvent) bool {
		return ev.Type == listing.EventTypeApproved && ev.Status == listing.StatusPublished && ev.Version == 2
	})).Return(errors.New("broker down")).Once()

	f := newFixture(t, func(c *listing.ServiceConfig) {
		c.Cache = cache
		c.Events = pub
	})
	p := f.seed(listing.StatusPending, "a")

	_, err := f.svc.Approve(context.Background(), f.admin, p.ID)
	require.NoError(t, err, "follow-up failures do not fail the operation")

	cache.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestService_AdminList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(listing.StatusPending, "a")
	f.seed(listing.StatusDraft, "b")

	_, err := f.svc.AdminList(ctx, f.owner, listing.AdminFilter{}, 1, 10)
	assert.ErrorIs(t, err, listing.ErrUnauthorized)

	page, err := f.svc.AdminList(ctx, f.admin, listing.AdminFilter{Status: listing.StatusPending}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	_, err = f.svc.AdminList(ctx, f.admin, listing.AdminFilter{Status: "sold"}, 1, 10)
	assert.ErrorIs(t, err, listing.ErrValidationFailed)
}

func TestService_ResolveFavorites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.seed(listing.StatusPublished, "a")
	second := f.seed(listing.StatusPublished, "b")
	hidden := f.seed(listing.StatusDraft, "c")
	gone := f.seed(listing.StatusPublished, "d")
	require.NoError(t, f.svc.SoftDelete(ctx, f.owner, gone.ID))

	got, err := f.svc.ResolveFavorites(ctx, f.renter, []ulid.ULID{second.ID, hidden.ID, ulid.Make(), gone.ID, first.ID, second.ID})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, second.ID, got[0].ID)
	assert.Equal(t, first.ID, got[1].ID)

	own, err := f.svc.ResolveFavorites(ctx, f.owner, []ulid.ULID{hidden.ID})
	require.NoError(t, err)
	assert.Len(t, own, 1, "owners still see their own drafts")

	empty, err := f.svc.ResolveFavorites(ctx, f.renter, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
