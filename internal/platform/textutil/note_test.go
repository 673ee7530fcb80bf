package textutil

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeNote(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "customer asked to hold", want: "customer asked to hold"},
		{name: "strips markup", in: "<b>urgent</b> <script>alert(1)</script>ship", want: "urgent ship"},
		{name: "collapses whitespace", in: "  left \n\t at   door ", want: "left at door"},
		{name: "keeps entities readable", in: "R&D team", want: "R&D team"},
		{name: "empty", in: "   ", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeNote(tc.in); got != tc.want {
				t.Fatalf("SanitizeNote(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSanitizeNoteTruncates(t *testing.T) {
	got := SanitizeNote(strings.Repeat("đ", MaxNoteLength+20))
	if n := utf8.RuneCountInString(got); n != MaxNoteLength {
		t.Fatalf("expected %d runes, got %d", MaxNoteLength, n)
	}
}

func TestNormalizeStringMap(t *testing.T) {
	t.Run("trims keys and values", func(t *testing.T) {
		input := map[string]string{
			" orderId ": " o-1 ",
			"sellerId":  "s-1",
			"note":      " ",
			" ":         "ignored",
		}

		expected := map[string]string{
			"orderId":  "o-1",
			"sellerId": "s-1",
		}

		actual := NormalizeStringMap(input)
		if !reflect.DeepEqual(actual, expected) {
			t.Fatalf("expected %#v got %#v", expected, actual)
		}
	})

	t.Run("returns nil for nil or empty input", func(t *testing.T) {
		if NormalizeStringMap(nil) != nil {
			t.Fatalf("expected nil for nil input")
		}
		if NormalizeStringMap(map[string]string{" ": "x"}) != nil {
			t.Fatalf("expected nil when nothing survives")
		}
	})
}
