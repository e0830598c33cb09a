package transport

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"silk-catalog/internal/domain"
	"silk-catalog/internal/media"
	"silk-catalog/internal/service"
)

// FlexInt accepts a JSON number or a numeric string
type FlexInt int

func (n *FlexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid integer %s", data)
	}
	*n = FlexInt(v)
	return nil
}

// MediaField is either a previously uploaded path or an inline upload
// object {base64, type, rotation}
type MediaField struct {
	Ref      string  `json:"-" validate:"mediaref"`
	Base64   string  `json:"base64"`
	Type     string  `json:"type"`
	Name     string  `json:"name"`
	Rotation FlexInt `json:"rotation"`
}

func (m *MediaField) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &m.Ref)
	}

	type inline MediaField
	var v inline
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = MediaField(v)
	return nil
}

// toInput decodes the inline payload. Data URLs are accepted.
func (m *MediaField) toInput() (*service.MediaInput, error) {
	if m == nil {
		return nil, nil
	}
	if m.Base64 == "" {
		return &service.MediaInput{Ref: m.Ref}, nil
	}

	payload := m.Base64
	if i := strings.Index(payload, ";base64,"); strings.HasPrefix(payload, "data:") && i >= 0 {
		payload = payload[i+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 media", service.ErrValidation)
	}

	kind := media.ParseKind(m.Type)
	if kind == media.KindImage && m.Name != "" {
		kind = media.KindFromFilename(m.Name)
	}

	return &service.MediaInput{
		Data:     data,
		Filename: m.Name,
		Kind:     kind,
		Rotation: int(m.Rotation),
	}, nil
}

// ProductRequest is the admin form payload for save-incomplete and
// add-product. Gallery entries may arrive as gallery or mediaGallery.
type ProductRequest struct {
	ID            string        `json:"id" validate:"required,max=64"`
	Name          string        `json:"name" validate:"max=200"`
	Category      string        `json:"category"`
	Fabric        string        `json:"fabric"`
	Color         string        `json:"color"`
	Price         domain.Price  `json:"price"`
	DiscountPrice *domain.Price `json:"discount_price"`
	Description   string        `json:"desc"`
	Stars         FlexInt       `json:"stars" validate:"omitempty,min=3,max=5"`
	Stock         string        `json:"stock"`
	StockCount    FlexInt       `json:"stock_count" validate:"gte=0"`
	MainImage     *MediaField   `json:"mainImage"`
	Gallery       []MediaField  `json:"gallery" validate:"dive"`
	MediaGallery  []MediaField  `json:"mediaGallery" validate:"dive"`
}

// ToInput converts the payload into a service input. Gallery entries
// whose inline payload cannot be decoded are dropped and reported.
func (r *ProductRequest) ToInput() (service.ProductInput, []string, error) {
	in := service.ProductInput{
		ID:            r.ID,
		Name:          r.Name,
		Category:      r.Category,
		Fabric:        r.Fabric,
		Color:         r.Color,
		Price:         r.Price,
		DiscountPrice: r.DiscountPrice,
		Description:   r.Description,
		Stars:         int(r.Stars),
		Stock:         r.Stock,
		StockCount:    int(r.StockCount),
	}

	main, err := r.MainImage.toInput()
	if err != nil {
		return in, nil, fmt.Errorf("main image: %w", err)
	}
	in.Main = main

	var warnings []string
	for i, field := range append(append([]MediaField{}, r.Gallery...), r.MediaGallery...) {
		item, err := field.toInput()
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("gallery item %d skipped: %v", i+1, err))
			continue
		}
		in.Gallery = append(in.Gallery, *item)
	}

	return in, warnings, nil
}

// IDRequest identifies a product for delete, restore and purge
type IDRequest struct {
	ID string `json:"id" validate:"required"`
}

// VisibilityRequest sets visible when given and toggles it otherwise
type VisibilityRequest struct {
	ID      string `json:"id" validate:"required"`
	Visible *bool  `json:"visible"`
}

// StatusResponse is the body of every successful mutation
type StatusResponse struct {
	Status   string   `json:"status"`
	URL      string   `json:"url,omitempty"`
	ID       string   `json:"id,omitempty"`
	Removed  *int     `json:"removed,omitempty"`
	Visible  *bool    `json:"visible,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// NextIDResponse carries the suggested ID for a new product
type NextIDResponse struct {
	NextID string `json:"next_id"`
}
