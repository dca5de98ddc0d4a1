// Package extract parses listing posts written with the fixed label grammar
// of the companion composer.
package extract

import (
	"strconv"
	"strings"
)

// Key identifies one of the known labeled fields.
type Key string

// The closed set of field keys.
const (
	KeyDistrict Key = "district"
	KeyAddress  Key = "address"
	KeyFloor    Key = "floor"
	KeyRooms    Key = "rooms"
	KeyPrice    Key = "price"
	KeyContact  Key = "contact"
	KeyPhone    Key = "phone"
)

// grammar is the ordered list of (key, label) pairs scanned per line. The
// labels match the vocabulary of the post composer; this is a deliberate
// small grammar, not NLP.
var grammar = []struct {
	key   Key
	label string
}{
	{KeyDistrict, "Район"},
	{KeyAddress, "Адрес"},
	{KeyFloor, "Этаж"},
	{KeyRooms, "Комнат"},
	{KeyPrice, "Цена"},
	{KeyContact, "Контакт"},
	{KeyPhone, "Телефон"},
}

// Fields maps field keys to the extracted string values. A key is present
// only when its exact "Label:" marker occurred in some line.
type Fields map[Key]string

// Parse splits text into lines and extracts labeled field values. Each line
// contributes at most one field: the first label whose "Label:" marker occurs
// in the line wins, and the trimmed remainder after the marker becomes the
// value. Absent or malformed fields are simply omitted.
func Parse(text string) Fields {
	fields := make(Fields)
	if text == "" {
		return fields
	}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		for _, g := range grammar {
			marker := g.label + ":"
			if idx := strings.Index(line, marker); idx >= 0 {
				fields[g.key] = strings.TrimSpace(line[idx+len(marker):])
				break
			}
		}
	}
	return fields
}

// Numeric derives the integer value of a field by stripping every non-digit
// rune. It reports false when the field is absent or no digits remain, so
// "Этаж: пятый" yields a floor string but no numeric floor.
func (f Fields) Numeric(key Key) (int64, bool) {
	value, ok := f[key]
	if !ok {
		return 0, false
	}
	var digits strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(digits.String(), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
