package catalog

import (
	_ "embed"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed colors.yaml
var colorTableYAML []byte

var colorTable = mustLoadColorTable(colorTableYAML)

func mustLoadColorTable(raw []byte) map[string]string {
	var entries map[string]string
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		panic(fmt.Sprintf("catalog: parse color table: %v", err))
	}
	table := make(map[string]string, len(entries))
	for key, name := range entries {
		hex, ok := NormalizeHex(key)
		if !ok {
			panic(fmt.Sprintf("catalog: color table key %q is not a hex color", key))
		}
		table[hex] = norm.NFC.String(strings.TrimSpace(name))
	}
	return table
}

// NormalizeHex converts "#rgb" or "#rrggbb" (any case) into the uppercase "#RRGGBB" form.
// The second return value is false when the value is not a hex color.
func NormalizeHex(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, "#") {
		return "", false
	}
	digits := strings.ToUpper(value[1:])
	if len(digits) != 3 && len(digits) != 6 {
		return "", false
	}
	for _, r := range digits {
		if !(r >= '0' && r <= '9') && !(r >= 'A' && r <= 'F') {
			return "", false
		}
	}
	if len(digits) == 3 {
		digits = string([]byte{digits[0], digits[0], digits[1], digits[1], digits[2], digits[2]})
	}
	return "#" + digits, true
}

// ColorName returns the canonical name for a color. Hex codes found in the table map to their name,
// unknown hex codes are returned in normalized form and names are returned verbatim.
func ColorName(value string) string {
	value = norm.NFC.String(strings.TrimSpace(value))
	hex, ok := NormalizeHex(value)
	if !ok {
		return value
	}
	if name, found := colorTable[hex]; found {
		return name
	}
	return hex
}
