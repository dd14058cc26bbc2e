package netgear

import "testing"

func TestMaybeDecodeUCS2(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"ascii text untouched", "Hello there", "Hello there"},
		{"hex ucs2 decoded", "00480065006C006C006F00200077006F0072006C0064", "Hello world"},
		{"surrogate pair decoded", "00480069D83DDE00", "Hi\U0001F600"},
		{"short hex untouched", "0048", "0048"},
		{"odd length untouched", "00480065006C006C006F00", "00480065006C006C006F00"},
		{"mixed content untouched", "0048006500ZZ006C006F", "0048006500ZZ006C006F"},
		{"empty", "", ""},
		{"numeric code untouched", "483920", "483920"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := maybeDecodeUCS2(tc.in); got != tc.want {
				t.Errorf("maybeDecodeUCS2(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestLooksLikeUCS2Hex(t *testing.T) {
	if !looksLikeUCS2Hex("00480065006C006C") {
		t.Error("16 hex digits should qualify")
	}
	if looksLikeUCS2Hex("00480065006C006") {
		t.Error("length not divisible by 4 should not qualify")
	}
	if looksLikeUCS2Hex("hello world text") {
		t.Error("plain text should not qualify")
	}
}
