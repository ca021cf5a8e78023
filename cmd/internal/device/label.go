package device

import "strings"

// browser substrings in match-priority order. Edge and Opera must be
// checked before Chrome, Chrome before Safari, since agent strings nest.
var browserPatterns = []struct {
	needle string
	name   string
}{
	{"edg/", "Edge"},
	{"edge", "Edge"},
	{"opr/", "Opera"},
	{"opera", "Opera"},
	{"firefox", "Firefox"},
	{"chrome", "Chrome"},
	{"safari", "Safari"},
}

var osPatterns = []struct {
	needle string
	name   string
}{
	{"windows", "Windows"},
	{"android", "Android"},
	{"iphone", "iOS"},
	{"ipad", "iOS"},
	{"mac os", "macOS"},
	{"macintosh", "macOS"},
	{"linux", "Linux"},
}

// LabelFromUserAgent derives a short human-readable label like
// "Chrome on Windows" from a raw agent string. Unrecognized parts
// fall back to "Unknown Browser" / "Unknown OS".
func LabelFromUserAgent(ua string) string {
	lower := strings.ToLower(ua)

	browser := "Unknown Browser"
	for _, p := range browserPatterns {
		if strings.Contains(lower, p.needle) {
			browser = p.name
			break
		}
	}

	os := "Unknown OS"
	for _, p := range osPatterns {
		if strings.Contains(lower, p.needle) {
			os = p.name
			break
		}
	}

	return browser + " on " + os
}
