package resolver

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// genericSuffixes are descriptive tail words the geocoder's text index
// handles poorly; it favors short canonical forms ("Louvre") over
// descriptive phrases ("Louvre Museum").
var genericSuffixes = []string{
	"museum",
	"tower",
	"cathedral",
	"palace",
	"gallery",
}

// vaguePrefixes lead free-text lodging descriptions that cannot be
// geocoded as written; the remainder usually names a real landmark.
var vaguePrefixes = []string{
	"apartment near",
	"apartment in",
	"airbnb near",
	"airbnb in",
	"hotel near",
	"hostel near",
	"near",
}

// NormalizeName strips leading articles and common generic suffixes
// from a place name. Returns the trimmed original when stripping would
// leave nothing.
func NormalizeName(name string) string {
	trimmed := strings.Join(strings.Fields(name), " ")
	s := trimmed

	if rest, ok := cutPrefixFold(s, "the "); ok {
		s = rest
	}
	for _, suffix := range genericSuffixes {
		if rest, ok := cutSuffixFold(s, " "+suffix); ok {
			s = rest
			break
		}
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return trimmed
	}
	return s
}

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lowercases s and strips diacritic marks, so "El Mesón" and
// "el meson" compare equal.
func Fold(s string) string {
	out, _, err := transform.String(foldTransformer, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// extractLandmark pulls an embedded landmark token out of a vague
// location description: "apartment near Sagrada Familia" yields
// "Sagrada Familia". Returns "" when no better token exists.
func extractLandmark(text string) string {
	folded := strings.ToLower(strings.TrimSpace(text))
	for _, prefix := range vaguePrefixes {
		if strings.HasPrefix(folded, prefix+" ") {
			return strings.TrimSpace(text[len(prefix)+1:])
		}
	}
	// "Hotel Arts, Barcelona" → geocoding the part after the comma is
	// the city-level retry, handled by the caller; here prefer the
	// segment before the comma.
	if i := strings.Index(text, ","); i > 0 {
		return strings.TrimSpace(text[:i])
	}
	return ""
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return s, false
}

func cutSuffixFold(s, suffix string) (string, bool) {
	if len(s) > len(suffix) && strings.EqualFold(s[len(s)-len(suffix):], suffix) {
		return s[:len(s)-len(suffix)], true
	}
	return s, false
}
