// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rentloop Contributors

package httpapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/rentloop/rentloop/internal/access"
	"github.com/rentloop/rentloop/internal/listing"
	"github.com/rentloop/rentloop/internal/media"
	"github.com/rentloop/rentloop/pkg/errutil"
)

// PropertyService is the listing API the handlers drive.
// *listing.Service implements it.
type PropertyService interface {
	Create(ctx context.Context, actor access.Actor, in listing.CreateInput) (*listing.Property, error)
	Update(ctx context.Context, actor access.Actor, id ulid.ULID, in listing.UpdateInput) (*listing.Property, error)
	Submit(ctx context.Context, actor access.Actor, id ulid.ULID) (*listing.Property, error)
	Approve(ctx context.Context, actor access.Actor, id ulid.ULID) (*listing.Property, error)
	Reject(ctx context.Context, actor access.Actor, id ulid.ULID, reason string) (*listing.Property, error)
	ToggleArchive(ctx context.Context, actor access.Actor, id ulid.ULID) (*listing.Property, error)
	SoftDelete(ctx context.Context, actor access.Actor, id ulid.ULID) error
	List(ctx context.Context, f listing.ListFilter, page, pageSize int) (*listing.Page, error)
	GetOwnProperties(ctx context.Context, actor access.Actor) ([]*listing.Property, error)
	GetByID(ctx context.Context, actor access.Actor, id ulid.ULID) (*listing.Property, error)
	AdminList(ctx context.Context, actor access.Actor, f listing.AdminFilter, page, pageSize int) (*listing.Page, error)
	ResolveFavorites(ctx context.Context, actor access.Actor, ids []ulid.ULID) ([]*listing.Property, error)
}

var _ PropertyService = (*listing.Service)(nil)

// MediaReader serves stored image bytes.
// *media.Store implements it.
type MediaReader interface {
	Open(ctx context.Context, handle string) (io.ReadCloser, string, error)
}

type handlers struct {
	svc      PropertyService
	media    MediaReader
	logger   *slog.Logger
	maxBytes int64
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errTooLarge) {
		writeErrorCode(w, http.StatusRequestEntityTooLarge, codeTooLarge, "request body too large")
		return
	}
	writeError(w, r, h.logger, err)
}

func (h *handlers) create(w http.ResponseWriter, r *http.Request) {
	f, err := parseForm(w, r, h.maxBytes)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	price, err := f.price()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	in := listing.CreateInput{
		Title:       f.values.Get("title"),
		Description: f.values.Get("description"),
		Location:    f.values.Get("location"),
		Uploads:     f.uploads,
	}
	if price != nil {
		in.Price = *price
	}

	p, err := h.svc.Create(r.Context(), actorFrom(r), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProperty(p))
}

func (h *handlers) update(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	f, err := parseForm(w, r, h.maxBytes)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	price, err := f.price()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	keep, err := f.keep()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	p, err := h.svc.Update(r.Context(), actorFrom(r), id, listing.UpdateInput{
		Title:       f.str("title"),
		Description: f.str("description"),
		Location:    f.str("location"),
		Price:       price,
		Keep:        keep,
		Uploads:     f.uploads,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProperty(p))
}

// transition adapts a single-id lifecycle call to a handler.
func (h *handlers) transition(op func(context.Context, access.Actor, ulid.ULID) (*listing.Property, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(chi.URLParam(r, "id"))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		p, err := op(r.Context(), actorFrom(r), id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toProperty(p))
	}
}

func (h *handlers) reject(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req rejectRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.svc.Reject(r.Context(), actorFrom(r), id, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProperty(p))
}

func (h *handlers) softDelete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.svc.SoftDelete(r.Context(), actorFrom(r), id); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Property removed"})
}

func (h *handlers) list(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r.URL.Query())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.svc.List(r.Context(), listing.ListFilter{
		Location: q.Location,
		PriceMin: q.PriceMin,
		PriceMax: q.PriceMax,
	}, q.Page, q.Limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPage(page))
}

func (h *handlers) listOwn(w http.ResponseWriter, r *http.Request) {
	ps, err := h.svc.GetOwnProperties(r.Context(), actorFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProperties(ps))
}

func (h *handlers) get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.svc.GetByID(r.Context(), actorFrom(r), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProperty(p))
}

func (h *handlers) adminList(w http.ResponseWriter, r *http.Request) {
	q, err := parseAdminQuery(r.URL.Query())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	f := listing.AdminFilter{Status: listing.Status(q.Status), OwnerID: q.OwnerID, IncludeDeleted: q.IncludeDeleted}
	page, err := h.svc.AdminList(r.Context(), actorFrom(r), f, q.Page, q.Limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPage(page))
}

func (h *handlers) resolveFavorites(w http.ResponseWriter, r *http.Request) {
	var req favoritesRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	ids, err := parseIDs(req.IDs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ps, err := h.svc.ResolveFavorites(r.Context(), actorFrom(r), ids)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProperties(ps))
}

func (h *handlers) serveMedia(w http.ResponseWriter, r *http.Request) {
	if h.media == nil {
		writeErrorCode(w, http.StatusNotFound, "not_found", "media not found")
		return
	}
	handle := chi.URLParam(r, "handle")
	rc, contentType, err := h.media.Open(r.Context(), handle)
	if errors.Is(err, media.ErrNotFound) {
		writeErrorCode(w, http.StatusNotFound, "not_found", "media not found")
		return
	}
	if err != nil {
		errutil.LogErrorContext(r.Context(), h.logger, "media read failed", err, "handle", handle)
		writeErrorCode(w, http.StatusBadGateway, "storage_unavailable", "media storage is unavailable")
		return
	}
	defer rc.Close() //nolint:errcheck // read-only

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.WarnContext(r.Context(), "media copy interrupted", "handle", handle, "error", err)
	}
}
