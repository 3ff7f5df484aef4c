package digest

import (
	"strings"
	"testing"
)

func TestSumDeterministic(t *testing.T) {
	h1 := Sum([]byte("IMG1"))
	h2 := Sum([]byte("IMG1"))

	if h1 != h2 {
		t.Errorf("same input should hash identically: %s vs %s", h1, h2)
	}
	if !h1.Valid() {
		t.Errorf("digest should be valid hex, got %q", h1)
	}
	if len(h1) != HexLength {
		t.Errorf("digest should be %d chars, got %d", HexLength, len(h1))
	}
}

func TestSumDistinctInputs(t *testing.T) {
	if Sum([]byte("IMG1")) == Sum([]byte("IMG2")) {
		t.Error("distinct inputs should not collide")
	}
}

func TestSumStringMatchesSum(t *testing.T) {
	if SumString("hello") != Sum([]byte("hello")) {
		t.Error("SumString should match Sum over the same bytes")
	}
}

func TestSumLowercaseHex(t *testing.T) {
	h := Sum([]byte("case check"))
	if string(h) != strings.ToLower(string(h)) {
		t.Errorf("digest should be lowercase hex, got %q", h)
	}
}

func TestHashValid(t *testing.T) {
	cases := []struct {
		name string
		hash Hash
		want bool
	}{
		{"real digest", Sum([]byte("x")), true},
		{"empty", Hash(""), false},
		{"short", Hash("abcd"), false},
		{"right length non-hex", Hash(strings.Repeat("z", HexLength)), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.hash.Valid(); got != tc.want {
				t.Errorf("Valid(%q) = %v, want %v", tc.hash, got, tc.want)
			}
		})
	}
}

func TestHashBytesRoundTrip(t *testing.T) {
	h := Sum([]byte("round trip"))

	raw, err := h.Bytes()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(raw) != 32 {
		t.Errorf("expected 32 raw bytes, got %d", len(raw))
	}
}

func TestSumJSONDeterministic(t *testing.T) {
	type private struct {
		Lat  float64 `json:"lat"`
		Lng  float64 `json:"lng"`
		Salt string  `json:"salt"`
	}

	p := private{Lat: 40.0, Lng: -74.0, Salt: "s"}
	signals := []int64{40000, -74000, 87, 1700000000}

	h1, err := SumJSON(p, signals)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h2, err := SumJSON(p, signals)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if h1 != h2 {
		t.Errorf("composite digest should be deterministic: %s vs %s", h1, h2)
	}

	// Any field change must change the digest.
	p.Salt = "t"
	h3, err := SumJSON(p, signals)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h3 == h1 {
		t.Error("changing a private field should change the digest")
	}
}

func TestSumJSONOrderSensitive(t *testing.T) {
	a, err := SumJSON("first", "second")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := SumJSON("second", "first")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a == b {
		t.Error("argument order is part of the layout and must affect the digest")
	}
}
