// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rentloop Contributors

package listing

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Validation limits.
const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 4000
	MaxLocationLength    = 200
	MaxPrice             = 9_999_999_999.99
	MaxUploadBytes       = 6_000_000
)

// allowedImageTypes maps accepted content types to their file extensions.
var allowedImageTypes = map[string][]string{
	"image/jpeg": {".jpg", ".jpeg"},
	"image/png":  {".png"},
	"image/webp": {".webp"},
}

// ValidationError represents an input validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is makes every ValidationError match ErrValidationFailed.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// ValidateTitle checks a title. Empty titles are allowed on drafts.
func ValidateTitle(title string) error {
	return validateLine("title", title, MaxTitleLength)
}

// ValidateLocation checks a location. Empty locations are allowed on drafts.
func ValidateLocation(location string) error {
	return validateLine("location", location, MaxLocationLength)
}

// ValidateDescription checks that a description is valid.
// Descriptions may be empty, must be valid UTF-8, no control characters (except newline/tab), and within length limit.
func ValidateDescription(desc string) error {
	if desc == "" {
		return nil
	}
	if !utf8.ValidString(desc) {
		return &ValidationError{Field: "description", Message: "must be valid UTF-8"}
	}
	if len(desc) > MaxDescriptionLength {
		return &ValidationError{Field: "description", Message: fmt.Sprintf("exceeds maximum length of %d", MaxDescriptionLength)}
	}
	if hasControlCharsExceptWhitespace(desc) {
		return &ValidationError{Field: "description", Message: "cannot contain control characters (except newline/tab)"}
	}
	return nil
}

// ValidatePrice checks a price. Zero means "not set yet".
func ValidatePrice(price float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return &ValidationError{Field: "price", Message: "must be a finite number"}
	}
	if price < 0 {
		return &ValidationError{Field: "price", Message: "cannot be negative"}
	}
	if price > MaxPrice {
		return &ValidationError{Field: "price", Message: fmt.Sprintf("exceeds maximum of %.2f", MaxPrice)}
	}
	return nil
}

// ValidateUpload checks an image payload before it is sent to the media store.
func ValidateUpload(u Upload) error {
	if len(u.Data) == 0 {
		return &ValidationError{Field: "images", Message: fmt.Sprintf("file %q is empty", u.Filename)}
	}
	if len(u.Data) > MaxUploadBytes {
		return &ValidationError{Field: "images", Message: fmt.Sprintf("file %q exceeds maximum size of %d bytes", u.Filename, MaxUploadBytes)}
	}
	exts, ok := allowedImageTypes[strings.ToLower(u.ContentType)]
	if !ok {
		return &ValidationError{Field: "images", Message: fmt.Sprintf("content type %q is not an accepted image type", u.ContentType)}
	}
	if u.Filename == "" {
		return nil
	}
	ext := strings.ToLower(filepath.Ext(u.Filename))
	for _, e := range exts {
		if e == ext {
			return nil
		}
	}
	return &ValidationError{Field: "images", Message: fmt.Sprintf("file %q does not match content type %s", u.Filename, u.ContentType)}
}

// validateLine checks a single-line free text field.
func validateLine(field, s string, maxLen int) error {
	if s == "" {
		return nil
	}
	if !utf8.ValidString(s) {
		return &ValidationError{Field: field, Message: "must be valid UTF-8"}
	}
	if len(s) > maxLen {
		return &ValidationError{Field: field, Message: fmt.Sprintf("exceeds maximum length of %d", maxLen)}
	}
	if hasControlChars(s) {
		return &ValidationError{Field: field, Message: "cannot contain control characters"}
	}
	return nil
}

// hasControlChars returns true if the string contains control characters.
func hasControlChars(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) {
			return true
		}
	}
	return false
}

// hasControlCharsExceptWhitespace returns true if the string contains control characters
// other than newline, carriage return, and tab.
func hasControlCharsExceptWhitespace(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return true
		}
	}
	return false
}
