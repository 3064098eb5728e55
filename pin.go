package main

import "strings"

// Zero-width characters that leak into parcel numbers from upstream GIS
// exports and PDF scrapes. They differ between the geometry source and the
// ownership source, so both sides must be normalized before any join.
var zeroWidthReplacer = strings.NewReplacer(
	"\u200B", "", // zero-width space
	"\u200C", "", // zero-width non-joiner
	"\u200D", "", // zero-width joiner
	"\uFEFF", "", // BOM / zero-width no-break space
	"\u2060", "", // word joiner
)

// normalizePIN canonicalizes a parcel identification number for joining:
// zero-width characters are stripped, whitespace runs collapse to a single
// space, and the result is trimmed. Idempotent.
func normalizePIN(pin string) string {
	if pin == "" {
		return ""
	}
	cleaned := zeroWidthReplacer.Replace(pin)
	return strings.Join(strings.Fields(cleaned), " ")
}
