package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hanko-field/storefront/internal/domain"
)

// RawProduct mirrors the product record returned by the catalog service. The service exposes the
// identifier either as "id" or as the alternate "_id".
type RawProduct struct {
	ID           string            `json:"id"`
	AltID        string            `json:"_id"`
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	Slug         string            `json:"slug"`
	CostPrice    Amount            `json:"costPrice"`
	ComparePrice Amount            `json:"comparePrice"`
	Price        Amount            `json:"price"`
	SalePrice    Amount            `json:"salePrice"`
	Images       []domain.ImageSet `json:"images"`
	Category     Ref               `json:"category"`
	Tags         []string          `json:"tags"`
	Active       *bool             `json:"isActive"`
	Featured     bool              `json:"isFeatured"`
}

// Identity returns the canonical product identifier.
func (p RawProduct) Identity() string {
	return firstNonEmpty(p.ID, p.AltID)
}

// RawInventory mirrors an inventory line record.
type RawInventory struct {
	ID        string `json:"id"`
	AltID     string `json:"_id"`
	Product   Ref    `json:"product"`
	ProductID string `json:"productId"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	Stock     int    `json:"stockQuantity"`
	Status    string `json:"status"`
}

// ProductRef returns the identifier of the owning product.
func (l RawInventory) ProductRef() string {
	return firstNonEmpty(l.ProductID, string(l.Product))
}

// RawCategory mirrors a category record.
type RawCategory struct {
	ID    string `json:"id"`
	AltID string `json:"_id"`
	Name  string `json:"name"`
}

// Identity returns the canonical category identifier.
func (c RawCategory) Identity() string {
	return firstNonEmpty(c.ID, c.AltID)
}

// RawDiscount mirrors a discount record from the listing payload. Discounts are passed through
// untouched; pricing rules are owned by the catalog service.
type RawDiscount struct {
	ID         string  `json:"id"`
	AltID      string  `json:"_id"`
	Code       string  `json:"code"`
	Percentage float64 `json:"percentage"`
	Active     bool    `json:"isActive"`
}

// Listing is the payload of the product listing call.
type Listing struct {
	Products    []RawProduct   `json:"products"`
	Inventories []RawInventory `json:"inventories"`
	Categories  []RawCategory  `json:"categories"`
	Discounts   []RawDiscount  `json:"discounts"`
}

// Detail is the payload of the single product call.
type Detail struct {
	Data struct {
		Product    RawProduct     `json:"product"`
		Inventory  []RawInventory `json:"inventory"`
		Categories []RawCategory  `json:"categories"`
	} `json:"data"`
}

// Ref decodes a reference that may arrive as a bare identifier or as an embedded object carrying
// "id" or "_id".
type Ref string

// UnmarshalJSON implements json.Unmarshaler.
func (r *Ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		*r = Ref(strings.TrimSpace(id))
		return nil
	}
	var obj struct {
		ID    string `json:"id"`
		AltID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("catalog: invalid reference: %w", err)
	}
	*r = Ref(firstNonEmpty(obj.ID, obj.AltID))
	return nil
}

// Amount is a price in the smallest currency unit. The catalog may send integers or integer
// strings. Null, "" and an absent field leave the amount unset so unit price resolution falls
// through to the next price field. Fractional input is rejected, never rounded.
type Amount struct {
	Minor int64
	Set   bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(strings.Trim(strings.TrimSpace(string(data)), `"`))
	if raw == "" || raw == "null" {
		*a = Amount{}
		return nil
	}
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*a = Amount{Minor: v, Set: true}
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return fmt.Errorf("catalog: invalid amount %q", raw)
	}
	if f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return fmt.Errorf("catalog: amount %q is not a whole number of minor units", raw)
	}
	*a = Amount{Minor: int64(f), Set: true}
	return nil
}

func (a Amount) int64Ptr() *int64 {
	if !a.Set {
		return nil
	}
	v := a.Minor
	return &v
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
