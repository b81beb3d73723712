package sunbird

import "strings"

// Formatting markers the web portal renders literally.
var textMarkers = []string{"__", "\n\n"}

// CleanText strips emphasis markers and blank-line breaks from outbound text.
// Markers are removed until none remain, so CleanText(CleanText(s)) == CleanText(s).
func CleanText(text string) string {
	for hasMarker(text) {
		for _, marker := range textMarkers {
			text = strings.ReplaceAll(text, marker, "")
		}
	}
	return text
}

func hasMarker(text string) bool {
	for _, marker := range textMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
