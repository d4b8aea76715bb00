// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rentloop Contributors

package listing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/oops"

	"github.com/rentloop/rentloop/pkg/errutil"
)

// Upload is a raw image payload supplied by a client.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// MediaPlan is the pure outcome of comparing stored images with a keep list.
type MediaPlan struct {
	// Keep holds retained handles in their stored order.
	Keep []string
	// Delete holds handles to release once the new record is committed.
	Delete []string
	// Uploads holds new payloads in submission order.
	Uploads []Upload
}

// FinalCount is the number of images the property will hold if every upload succeeds.
func (p MediaPlan) FinalCount() int {
	return len(p.Keep) + len(p.Uploads)
}

// PlanMedia computes which handles survive an update.
//
// A nil keep list means the client did not send one and every current
// handle is retained. A non-nil empty keep list releases all of them.
// Retained handles follow the order of current, not of keep, so the
// primary image only changes when the client drops it. Handles in keep
// that are not in current are ignored.
//
// The image cap and payload checks run here, before any media call.
func PlanMedia(current, keep []string, uploads []Upload) (MediaPlan, error) {
	plan := MediaPlan{Uploads: uploads}

	if keep == nil {
		plan.Keep = append([]string(nil), current...)
	} else {
		keepSet := make(map[string]struct{}, len(keep))
		for _, h := range keep {
			keepSet[h] = struct{}{}
		}
		for _, h := range current {
			if _, ok := keepSet[h]; ok {
				plan.Keep = append(plan.Keep, h)
			} else {
				plan.Delete = append(plan.Delete, h)
			}
		}
	}

	if plan.FinalCount() > MaxImages {
		return MediaPlan{}, &ValidationError{
			Field:   "images",
			Message: fmt.Sprintf("%d images exceed the maximum of %d", plan.FinalCount(), MaxImages),
		}
	}
	for _, u := range uploads {
		if err := ValidateUpload(u); err != nil {
			return MediaPlan{}, err
		}
	}
	return plan, nil
}

// mediaExecutor performs the side effects of a MediaPlan.
type mediaExecutor struct {
	store  MediaStore
	logger *slog.Logger
}

// uploadAll uploads payloads in order. With tolerant set, failed uploads are
// logged and skipped; otherwise the first failure releases what was already
// uploaded and aborts.
func (e *mediaExecutor) uploadAll(ctx context.Context, uploads []Upload, tolerant bool) ([]string, error) {
	handles := make([]string, 0, len(uploads))
	var firstErr error
	for i, u := range uploads {
		handle, err := e.store.Upload(ctx, u.Data, u.ContentType)
		if err != nil {
			wrapped := oops.Code(CodeMediaUpload).
				With("index", i).
				With("filename", u.Filename).
				Wrap(fmt.Errorf("%w: %w", ErrStorageUnavailable, err))
			if !tolerant {
				e.release(ctx, handles)
				return nil, wrapped
			}
			errutil.LogError(e.logger, "image upload failed, continuing", wrapped)
			if firstErr == nil {
				firstErr = wrapped
			}
			continue
		}
		handles = append(handles, handle)
	}
	if len(uploads) > 0 && len(handles) == 0 {
		return nil, firstErr
	}
	return handles, nil
}

// release deletes handles best-effort. Failures are logged, never returned.
func (e *mediaExecutor) release(ctx context.Context, handles []string) {
	for _, h := range handles {
		if err := e.store.Delete(ctx, h); err != nil {
			errutil.LogError(e.logger, "image delete failed",
				oops.Code(CodeMediaDelete).With("handle", h).Wrap(err))
		}
	}
}
