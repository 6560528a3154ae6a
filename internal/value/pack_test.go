package value

import (
	"reflect"
	"testing"
)

func TestPackRoundTrip(t *testing.T) {
	cases := [][]string{
		{"Hello", "World"},
		{"He,llo", "World"},
		{"a$b", "c$0d", "$1"},
		{"", "x", ""},
		{"only"},
	}
	for _, items := range cases {
		enc := PackEncode(items)
		dec := PackDecode(enc)
		if !reflect.DeepEqual(dec, items) {
			t.Fatalf("round trip %v -> %q -> %v", items, enc, dec)
		}
		if PackCount(enc) != len(items) {
			t.Fatalf("PackCount(%q) = %d, want %d", enc, PackCount(enc), len(items))
		}
	}
	// The documented escape example.
	if enc := PackEncode([]string{"He,llo", "World"}); enc != "He$0llo,World" {
		t.Fatalf("encode = %q, want He$0llo,World", enc)
	}
	if len(PackDecode("")) != 0 {
		t.Fatalf("empty pack must decode to no items")
	}
}

func TestPackLookup(t *testing.T) {
	enc := PackEncode([]string{"name", "Jo,hn", "age", "42"})
	if v := ForKey(String(enc), String("age")); v.Text() != "42" {
		t.Fatalf("keyed lookup = %q", v.Text())
	}
	if v := Nth(String(enc), Int(2)); v.Text() != "Jo,hn" {
		t.Fatalf("indexed lookup = %q", v.Text())
	}
}

func TestPackFromJSON(t *testing.T) {
	// Arrays become positional packs.
	p, ok := PackFromJSON([]byte(`["a","b,c",3]`))
	if !ok {
		t.Fatalf("array decode failed")
	}
	if got := PackDecode(p); !reflect.DeepEqual(got, []string{"a", "b,c", "3"}) {
		t.Fatalf("array pack = %v", got)
	}
	// Objects become alternating key/value packs with sorted keys.
	p, ok = PackFromJSON([]byte(`{"b":1,"a":{"x":true}}`))
	if !ok {
		t.Fatalf("object decode failed")
	}
	items := PackDecode(p)
	if items[0] != "a" || items[2] != "b" || items[3] != "1" {
		t.Fatalf("object pack = %v", items)
	}
	// Nested objects are themselves packs.
	nested := PackDecode(items[1])
	if !reflect.DeepEqual(nested, []string{"x", "true"}) {
		t.Fatalf("nested pack = %v", nested)
	}
	if _, ok := PackFromJSON([]byte(`{"broken`)); ok {
		t.Fatalf("invalid JSON must fail")
	}
}
