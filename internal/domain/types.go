package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// ImageSet stores the renditions available for a product image. Catalog records may carry a bare URL,
// in which case every rendition points at the same location.
type ImageSet struct {
	Original string `json:"original"`
	Thumb    string `json:"thumb,omitempty"`
	Medium   string `json:"medium,omitempty"`
}

// UnmarshalJSON accepts either a plain URL string or an {original, thumb, medium} object.
func (i *ImageSet) UnmarshalJSON(data []byte) error {
	var url string
	if err := json.Unmarshal(data, &url); err == nil {
		url = strings.TrimSpace(url)
		*i = ImageSet{Original: url, Thumb: url, Medium: url}
		return nil
	}
	type plain ImageSet
	var obj plain
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*i = ImageSet(obj)
	i.Original = strings.TrimSpace(i.Original)
	i.Thumb = strings.TrimSpace(i.Thumb)
	i.Medium = strings.TrimSpace(i.Medium)
	if i.Original == "" {
		i.Original = firstNonEmpty(i.Medium, i.Thumb)
	}
	return nil
}

// Empty reports whether the set carries no usable URL.
func (i ImageSet) Empty() bool {
	return i.Original == "" && i.Thumb == "" && i.Medium == ""
}

// InventoryLine is the stock-keeping record for one size/color variant of a product.
type InventoryLine struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	Stock     int    `json:"stockQuantity"`
	Status    string `json:"status,omitempty"`
}

// Category describes a catalog category reference.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Product is the denormalized catalog view consumed by the cart, wishlist and variant components.
// Prices are expressed in the smallest currency unit; nil means the catalog did not define the price.
type Product struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Slug         string          `json:"slug,omitempty"`
	CostPrice    *int64          `json:"costPrice,omitempty"`
	ComparePrice *int64          `json:"comparePrice,omitempty"`
	Price        *int64          `json:"price,omitempty"`
	SalePrice    *int64          `json:"salePrice,omitempty"`
	Images       []ImageSet      `json:"images,omitempty"`
	Category     string          `json:"category,omitempty"`
	Tags         []string        `json:"tags,omitempty"`
	Active       bool            `json:"active"`
	Featured     bool            `json:"featured,omitempty"`
	Sizes        []string        `json:"sizes,omitempty"`
	Colors       []string        `json:"colors,omitempty"`
	Inventory    []InventoryLine `json:"inventory,omitempty"`
}

// UnmarshalJSON decodes a product, folding the alternate "_id" identifier into ID so that previously
// persisted blobs resolve to the same identity regardless of which field they carried.
func (p *Product) UnmarshalJSON(data []byte) error {
	type plain Product
	var aux struct {
		plain
		AltID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*p = Product(aux.plain)
	p.ID = firstNonEmpty(p.ID, aux.AltID)
	return nil
}

// UnitPrice returns the price charged per unit: compare-at, then cost, then list price, then zero.
func (p Product) UnitPrice() int64 {
	for _, candidate := range []*int64{p.ComparePrice, p.CostPrice, p.Price} {
		if candidate != nil {
			return *candidate
		}
	}
	return 0
}

// CartEntry stores a single variant line inside a cart.
type CartEntry struct {
	Product     Product `json:"product"`
	Size        string  `json:"size"`
	Color       string  `json:"color"`
	InventoryID string  `json:"inventoryId"`
	Quantity    int     `json:"quantity"`
}

// Key returns the variant identity of the entry.
func (e CartEntry) Key() LineKey {
	return LineKey{ProductID: e.Product.ID, Size: e.Size, Color: e.Color}
}

// LineKey identifies a cart line by product and variant.
type LineKey struct {
	ProductID string `json:"productId"`
	Size      string `json:"size"`
	Color     string `json:"color"`
}

// Cart is the serialisable cart shape persisted per session.
type Cart struct {
	Items      []CartEntry `json:"items"`
	TotalItems int         `json:"totalItems"`
	TotalPrice int64       `json:"totalPrice"`
}

// WishlistEntry references a liked product.
type WishlistEntry struct {
	Product Product `json:"product"`
}

// Review captures product feedback. Pending marks entries that were inserted locally and await
// confirmation from the review service.
type Review struct {
	ID        string    `json:"id"`
	ProductID string    `json:"productId"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName,omitempty"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"createdAt"`
	Pending   bool      `json:"pending,omitempty"`
}

// UserProfile is the signed-in user snapshot stored with the session.
type UserProfile struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
	Role        string `json:"role,omitempty"`
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
