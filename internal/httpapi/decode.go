// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rentloop Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/rentloop/rentloop/internal/listing"
)

// Form field names.
const (
	fieldImages     = "images"
	fieldKeepImages = "keepImages"
)

// multipartMemory is the part of a multipart body held in memory before
// spilling to temporary files.
const multipartMemory = 8 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

type listQuery struct {
	Location string   `validate:"max=200"`
	PriceMin *float64 `validate:"omitempty,gte=0"`
	PriceMax *float64 `validate:"omitempty,gte=0"`
	Page     int      `validate:"gte=0"`
	Limit    int      `validate:"gte=0,lte=100"`
}

type adminQuery struct {
	Status         string    `validate:"omitempty,oneof=draft pending published archived"`
	Owner          string    `validate:"omitempty,ulid"`
	OwnerID        ulid.ULID `validate:"-"`
	IncludeDeleted bool
	Page           int `validate:"gte=0"`
	Limit          int `validate:"gte=0,lte=100"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type favoritesRequest struct {
	IDs []string `json:"ids" validate:"required,max=100,dive,ulid"`
}

// badRequest reports a malformed request as a listing validation failure
// so it shares the error mapping of the service.
func badRequest(field, message string) error {
	return oops.Code(listing.CodeValidationFailed).Wrap(&listing.ValidationError{Field: field, Message: message})
}

// validationError converts validator failures into a ValidationError on the
// first offending field.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return badRequest(lowerFirst(fe.Field()), "failed "+fe.Tag()+" check")
	}
	return badRequest("request", err.Error())
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func parseListQuery(q url.Values) (listQuery, error) {
	var lq listQuery
	var err error
	lq.Location = strings.TrimSpace(q.Get("location"))
	if lq.PriceMin, err = optionalFloat(q, "priceMin"); err != nil {
		return lq, err
	}
	if lq.PriceMax, err = optionalFloat(q, "priceMax"); err != nil {
		return lq, err
	}
	if lq.Page, err = optionalInt(q, "page"); err != nil {
		return lq, err
	}
	if lq.Limit, err = optionalInt(q, "limit"); err != nil {
		return lq, err
	}
	if err := validate.Struct(lq); err != nil {
		return lq, validationError(err)
	}
	return lq, nil
}

func parseAdminQuery(q url.Values) (adminQuery, error) {
	aq := adminQuery{
		Status: q.Get("status"),
		Owner:  q.Get("owner"),
	}
	var err error
	if v := q.Get("includeDeleted"); v != "" {
		if aq.IncludeDeleted, err = strconv.ParseBool(v); err != nil {
			return aq, badRequest("includeDeleted", "must be a boolean")
		}
	}
	if aq.Page, err = optionalInt(q, "page"); err != nil {
		return aq, err
	}
	if aq.Limit, err = optionalInt(q, "limit"); err != nil {
		return aq, err
	}
	if err := validate.Struct(aq); err != nil {
		return aq, validationError(err)
	}
	// The ulid tag checks the alphabet only; Parse also rejects overflow.
	if aq.Owner != "" {
		if aq.OwnerID, err = ulid.Parse(aq.Owner); err != nil {
			return aq, badRequest("owner", "must be a valid id")
		}
	}
	return aq, nil
}

func optionalFloat(q url.Values, key string) (*float64, error) {
	s := strings.TrimSpace(q.Get(key))
	if s == "" {
		return nil, nil //nolint:nilnil // absent parameter
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, badRequest(key, "must be a number")
	}
	return &f, nil
}

func optionalInt(q url.Values, key string) (int, error) {
	s := strings.TrimSpace(q.Get(key))
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, badRequest(key, "must be an integer")
	}
	return n, nil
}

// decodeJSON reads an optional JSON body into dst and validates it.
// An empty body leaves dst unchanged.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return badRequest("body", "malformed JSON")
	}
	if err := validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

// form is a parsed property submission.
type form struct {
	values  url.Values
	uploads []listing.Upload
}

// parseForm reads a multipart or urlencoded body bounded by maxBytes.
func parseForm(w http.ResponseWriter, r *http.Request, maxBytes int64) (*form, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	err := r.ParseMultipartForm(multipartMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errTooLarge
		}
		return nil, badRequest("body", "malformed form")
	}

	f := &form{values: r.PostForm}
	if r.MultipartForm != nil {
		for _, fh := range r.MultipartForm.File[fieldImages] {
			u, err := readUpload(fh)
			if err != nil {
				return nil, err
			}
			f.uploads = append(f.uploads, u)
		}
	}
	return f, nil
}

var errTooLarge = errors.New("request body too large")

func readUpload(fh *multipart.FileHeader) (listing.Upload, error) {
	file, err := fh.Open()
	if err != nil {
		return listing.Upload{}, oops.With("filename", fh.Filename).Wrap(err)
	}
	defer file.Close() //nolint:errcheck // read-only

	data, err := io.ReadAll(file)
	if err != nil {
		return listing.Upload{}, oops.With("filename", fh.Filename).Wrap(err)
	}
	ct := fh.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(data)
	}
	return listing.Upload{Filename: fh.Filename, ContentType: ct, Data: data}, nil
}

func (f *form) has(key string) bool {
	_, ok := f.values[key]
	return ok
}

func (f *form) str(key string) *string {
	if !f.has(key) {
		return nil
	}
	s := f.values.Get(key)
	return &s
}

func (f *form) price() (*float64, error) {
	if !f.has("price") {
		return nil, nil //nolint:nilnil // absent field
	}
	s := strings.TrimSpace(f.values.Get("price"))
	if s == "" {
		return nil, nil //nolint:nilnil // blank means unchanged
	}
	p, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, badRequest("price", "must be a number")
	}
	return &p, nil
}

// keep decodes the keep list. It accepts a single JSON array or the field
// repeated once per handle (also as keepImages[]). Absent means nil; present
// but empty means an empty non-nil list.
func (f *form) keep() ([]string, error) {
	raw, ok := f.values[fieldKeepImages]
	if !ok {
		raw, ok = f.values[fieldKeepImages+"[]"]
	}
	if !ok {
		return nil, nil
	}

	if len(raw) == 1 && strings.HasPrefix(strings.TrimSpace(raw[0]), "[") {
		var handles []string
		if err := json.Unmarshal([]byte(raw[0]), &handles); err != nil {
			return nil, badRequest(fieldKeepImages, "must be a JSON array of strings")
		}
		if handles == nil {
			handles = []string{}
		}
		return handles, nil
	}

	handles := make([]string, 0, len(raw))
	for _, h := range raw {
		if h = strings.TrimSpace(h); h != "" {
			handles = append(handles, h)
		}
	}
	return handles, nil
}

func parseID(raw string) (ulid.ULID, error) {
	id, err := ulid.Parse(raw)
	if err != nil {
		return ulid.ULID{}, oops.Code(listing.CodeNotFound).With("property_id", raw).Wrap(listing.ErrNotFound)
	}
	return id, nil
}

func parseIDs(raw []string) ([]ulid.ULID, error) {
	ids := make([]ulid.ULID, 0, len(raw))
	for _, s := range raw {
		id, err := ulid.Parse(s)
		if err != nil {
			return nil, badRequest("ids", "must contain property ids")
		}
		ids = append(ids, id)
	}
	return ids, nil
}
