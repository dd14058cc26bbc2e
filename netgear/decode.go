package netgear

import (
	"encoding/hex"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// maybeDecodeUCS2 decodes message text the modem delivered as hex-encoded
// UCS-2 (its representation for payloads outside the GSM alphabet). Text
// that does not look like a UCS-2 hex dump is returned unchanged.
func maybeDecodeUCS2(s string) string {
	if !looksLikeUCS2Hex(s) {
		return s
	}

	data, err := hex.DecodeString(s)
	if err != nil {
		return s
	}

	decoder := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder()
	decoded, err := decoder.Bytes(data)
	if err != nil || !utf8.Valid(decoded) {
		return s
	}
	return string(decoded)
}

// looksLikeUCS2Hex requires at least four UTF-16 code units of pure hex
// digits; anything shorter is overwhelmingly more likely to be plain text.
func looksLikeUCS2Hex(s string) bool {
	if len(s) < 16 || len(s)%4 != 0 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
