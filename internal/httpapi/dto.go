// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rentloop Contributors

package httpapi

import (
	"time"

	"github.com/rentloop/rentloop/internal/listing"
)

// mediaPath is the public prefix under which image handles are served.
const mediaPath = "/api/media/"

type propertyResponse struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Location    string     `json:"location"`
	Price       float64    `json:"price"`
	Images      []string   `json:"images"`
	ImageURLs   []string   `json:"imageUrls"`
	Status      string     `json:"status"`
	Owner       string     `json:"owner"`
	Version     int64      `json:"version"`
	DeletedAt   *time.Time `json:"deletedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type pageResponse struct {
	Properties  []propertyResponse `json:"properties"`
	Total       int                `json:"total"`
	TotalPages  int                `json:"totalPages"`
	CurrentPage int                `json:"currentPage"`
	PageSize    int                `json:"pageSize"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func toProperty(p *listing.Property) propertyResponse {
	images := p.Images
	if images == nil {
		images = []string{}
	}
	urls := make([]string, len(images))
	for i, h := range images {
		urls[i] = mediaPath + h
	}
	return propertyResponse{
		ID:          p.ID.String(),
		Title:       p.Title,
		Description: p.Description,
		Location:    p.Location,
		Price:       p.Price,
		Images:      images,
		ImageURLs:   urls,
		Status:      string(p.Status),
		Owner:       p.OwnerID.String(),
		Version:     p.Version,
		DeletedAt:   p.DeletedAt,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toProperties(ps []*listing.Property) []propertyResponse {
	out := make([]propertyResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, toProperty(p))
	}
	return out
}

func toPage(p *listing.Page) pageResponse {
	return pageResponse{
		Properties:  toProperties(p.Properties),
		Total:       p.Total,
		TotalPages:  p.TotalPages,
		CurrentPage: p.CurrentPage,
		PageSize:    p.PageSize,
	}
}
