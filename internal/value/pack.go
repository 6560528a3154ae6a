package value

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// Pack is the compact single-cell encoding for ordered string lists and, by
// convention, alternating key/value records. Items are separated by commas;
// a literal comma inside an item is written $0 and a literal dollar sign $1,
// so decode(encode(x)) == x for every x.

// PackEncode joins items into a Pack string, escaping separators.
func PackEncode(items []string) string {
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteByte(',')
		}
		// $ first, otherwise escaped commas would be re-escaped.
		it = strings.ReplaceAll(it, "$", "$1")
		it = strings.ReplaceAll(it, ",", "$0")
		b.WriteString(it)
	}
	return b.String()
}

// PackDecode splits a Pack string back into its items. The empty string
// decodes to no items.
func PackDecode(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	items := make([]string, len(parts))
	for i, p := range parts {
		p = strings.ReplaceAll(p, "$0", ",")
		p = strings.ReplaceAll(p, "$1", "$")
		items[i] = p
	}
	return items
}

// PackCount returns the number of items without allocating the decoded list.
func PackCount(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, ",") + 1
}

// PackFromJSON converts a JSON document into a Pack: arrays positionally,
// objects as alternating key/value pairs. Nested arrays and objects are
// recursively Pack-encoded into single items.
func PackFromJSON(data []byte) (string, bool) {
	var doc any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return "", false
	}
	return packFromDecoded(doc), true
}

func packFromDecoded(doc any) string {
	switch d := doc.(type) {
	case []any:
		items := make([]string, len(d))
		for i, el := range d {
			items[i] = packItemFromDecoded(el)
		}
		return PackEncode(items)
	case map[string]any:
		// Deterministic key order keeps encoding stable across runs.
		keys := make([]string, 0, len(d))
		for k := range d {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		items := make([]string, 0, len(d)*2)
		for _, k := range keys {
			items = append(items, k, packItemFromDecoded(d[k]))
		}
		return PackEncode(items)
	default:
		return packItemFromDecoded(doc)
	}
}

func packItemFromDecoded(el any) string {
	switch e := el.(type) {
	case nil:
		return ""
	case string:
		return e
	case bool:
		return strconv.FormatBool(e)
	case json.Number:
		return e.String()
	default:
		// Nested object or array: recurse into a nested Pack.
		return packFromDecoded(el)
	}
}
