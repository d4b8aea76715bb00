// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rentloop Contributors

package listing

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTitle(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		errMsg  string
	}{
		{"valid title", "Sunny loft", false, ""},
		{"empty allowed on draft", "", false, ""},
		{"title too long", strings.Repeat("a", MaxTitleLength+1), true, "exceeds maximum length"},
		{"max length title", strings.Repeat("a", MaxTitleLength), false, ""},
		{"unicode title", "Квартира у моря", false, ""},
		{"invalid UTF-8 bytes", "\xff\xfe", true, "must be valid UTF-8"},
		{"newline not allowed", "line\nbreak", true, "cannot contain control characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTitle(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				var ve *ValidationError
				assert.ErrorAs(t, err, &ve)
				assert.ErrorIs(t, err, ErrValidationFailed)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateDescription(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid description", "Bright, quiet, close to the metro.", false},
		{"empty description", "", false},
		{"newline allowed", "line1\nline2", false},
		{"tab allowed", "a\tb", false},
		{"null byte rejected", "a\x00b", true},
		{"too long", strings.Repeat("a", MaxDescriptionLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDescription(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateLocation(t *testing.T) {
	assert.NoError(t, ValidateLocation("Porto, Ribeira"))
	assert.Error(t, ValidateLocation(strings.Repeat("x", MaxLocationLength+1)))
}

func TestValidatePrice(t *testing.T) {
	assert.NoError(t, ValidatePrice(0))
	assert.NoError(t, ValidatePrice(950.50))
	assert.NoError(t, ValidatePrice(MaxPrice))
	assert.Error(t, ValidatePrice(-1))
	assert.Error(t, ValidatePrice(MaxPrice*10))
	assert.Error(t, ValidatePrice(math.NaN()))
	assert.Error(t, ValidatePrice(math.Inf(1)))
}

func TestValidateUpload(t *testing.T) {
	data := []byte{1, 2, 3}
	tests := []struct {
		name    string
		upload  Upload
		wantErr bool
	}{
		{"jpeg", Upload{Filename: "a.jpg", ContentType: "image/jpeg", Data: data}, false},
		{"jpeg long ext", Upload{Filename: "a.JPEG", ContentType: "image/jpeg", Data: data}, false},
		{"png", Upload{Filename: "a.png", ContentType: "image/png", Data: data}, false},
		{"webp", Upload{Filename: "a.webp", ContentType: "image/webp", Data: data}, false},
		{"no filename", Upload{ContentType: "image/png", Data: data}, false},
		{"gif rejected", Upload{Filename: "a.gif", ContentType: "image/gif", Data: data}, true},
		{"extension mismatch", Upload{Filename: "a.png", ContentType: "image/jpeg", Data: data}, true},
		{"empty", Upload{Filename: "a.png", ContentType: "image/png"}, true},
		{"too large", Upload{Filename: "a.png", ContentType: "image/png", Data: bytes.Repeat([]byte{1}, MaxUploadBytes+1)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUpload(tt.upload)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidationFailed)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
