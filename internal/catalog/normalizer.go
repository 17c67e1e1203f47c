package catalog

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/hanko-field/storefront/internal/domain"
)

// Normalize builds the denormalized product view: the canonical identifier, the product's own
// inventory lines, the distinct size and color facets, and the resolved category name. Categories
// are resolved only when a list is supplied. Stock is not filtered here.
func Normalize(raw RawProduct, inventories []RawInventory, categories []RawCategory) domain.Product {
	id := raw.Identity()

	product := domain.Product{
		ID:           id,
		Name:         strings.TrimSpace(raw.Name),
		Description:  strings.TrimSpace(raw.Description),
		Slug:         strings.TrimSpace(raw.Slug),
		CostPrice:    raw.CostPrice.int64Ptr(),
		ComparePrice: raw.ComparePrice.int64Ptr(),
		Price:        raw.Price.int64Ptr(),
		SalePrice:    raw.SalePrice.int64Ptr(),
		Category:     string(raw.Category),
		Tags:         normalizeTags(raw.Tags),
		Active:       raw.Active == nil || *raw.Active,
		Featured:     raw.Featured,
		Sizes:        []string{},
		Colors:       []string{},
		Inventory:    []domain.InventoryLine{},
	}

	for _, img := range raw.Images {
		if !img.Empty() {
			product.Images = append(product.Images, img)
		}
	}

	if categories != nil {
		if name, ok := categoryName(categories, product.Category); ok {
			product.Category = name
		}
	}

	seenSize := make(map[string]struct{})
	seenColor := make(map[string]struct{})
	for _, rawLine := range inventories {
		if !ownsLine(raw, rawLine) {
			continue
		}
		line := normalizeLine(rawLine, id)
		product.Inventory = append(product.Inventory, line)

		if _, ok := seenSize[line.Size]; !ok && line.Size != "" {
			seenSize[line.Size] = struct{}{}
			product.Sizes = append(product.Sizes, line.Size)
		}
		name := ColorName(line.Color)
		if _, ok := seenColor[name]; !ok && name != "" {
			seenColor[name] = struct{}{}
			product.Colors = append(product.Colors, name)
		}
	}

	return product
}

// NormalizeListing normalizes every product of a listing payload against the shared inventory and
// category collections.
func NormalizeListing(listing Listing) []domain.Product {
	byProduct := make(map[string][]RawInventory)
	for _, line := range listing.Inventories {
		ref := line.ProductRef()
		byProduct[ref] = append(byProduct[ref], line)
	}

	products := make([]domain.Product, 0, len(listing.Products))
	for _, raw := range listing.Products {
		lines := byProduct[strings.TrimSpace(raw.ID)]
		if alt := strings.TrimSpace(raw.AltID); alt != "" && alt != strings.TrimSpace(raw.ID) {
			lines = append(lines[:len(lines):len(lines)], byProduct[alt]...)
		}
		products = append(products, Normalize(raw, lines, listing.Categories))
	}
	return products
}

// NormalizeDetail normalizes the single product payload.
func NormalizeDetail(detail Detail) domain.Product {
	return Normalize(detail.Data.Product, detail.Data.Inventory, detail.Data.Categories)
}

func ownsLine(product RawProduct, line RawInventory) bool {
	ref := line.ProductRef()
	if ref == "" {
		return false
	}
	return ref == strings.TrimSpace(product.ID) || ref == strings.TrimSpace(product.AltID)
}

func normalizeLine(raw RawInventory, productID string) domain.InventoryLine {
	stock := raw.Stock
	if stock < 0 {
		stock = 0
	}
	return domain.InventoryLine{
		ID:        firstNonEmpty(raw.ID, raw.AltID),
		ProductID: productID,
		Size:      norm.NFC.String(strings.TrimSpace(raw.Size)),
		Color:     norm.NFC.String(strings.TrimSpace(raw.Color)),
		Stock:     stock,
		Status:    strings.TrimSpace(raw.Status),
	}
}

func categoryName(categories []RawCategory, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	for _, category := range categories {
		if category.Identity() == ref || strings.TrimSpace(category.AltID) == ref {
			name := strings.TrimSpace(category.Name)
			return name, name != ""
		}
	}
	return "", false
}

func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if trimmed := strings.TrimSpace(tag); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
