// Package variant maps size and color selections onto concrete inventory lines.
package variant

import (
	"strings"

	"github.com/hanko-field/storefront/internal/catalog"
	"github.com/hanko-field/storefront/internal/domain"
)

// ColorsEqual compares an inventory line color against a canonical color name. Hex line colors are
// converted to their canonical name first; the comparison itself is case-sensitive.
func ColorsEqual(lineColor, color string) bool {
	return catalog.ColorName(lineColor) == catalog.ColorName(color)
}

// Resolve returns the inventory line matching size and color. The boolean is false when no line
// matches.
func Resolve(inventory []domain.InventoryLine, size, color string) (domain.InventoryLine, bool) {
	size = strings.TrimSpace(size)
	for _, line := range inventory {
		if line.Size == size && ColorsEqual(line.Color, color) {
			return line, true
		}
	}
	return domain.InventoryLine{}, false
}

// AvailableSizes lists the distinct sizes that have stock on at least one line, in first-seen order.
func AvailableSizes(inventory []domain.InventoryLine) []string {
	seen := make(map[string]struct{})
	sizes := []string{}
	for _, line := range inventory {
		if line.Stock <= 0 || line.Size == "" {
			continue
		}
		if _, ok := seen[line.Size]; ok {
			continue
		}
		seen[line.Size] = struct{}{}
		sizes = append(sizes, line.Size)
	}
	return sizes
}

// AvailableColorsForSize lists the canonical color names offered for size. Lines without stock are
// excluded, the same rule AvailableSizes applies.
func AvailableColorsForSize(inventory []domain.InventoryLine, size string) []string {
	size = strings.TrimSpace(size)
	seen := make(map[string]struct{})
	colors := []string{}
	for _, line := range inventory {
		if line.Size != size || line.Stock <= 0 {
			continue
		}
		name := catalog.ColorName(line.Color)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		colors = append(colors, name)
	}
	return colors
}
