package sanitize

import (
	"github.com/microcosm-cc/bluemonday"
)

var (
	// strictPolicy removes all HTML tags and attributes. Used for fields
	// that must be plain text (event names, locations, host names).
	strictPolicy = bluemonday.StrictPolicy()

	// ugcPolicy allows safe user-generated formatting. Used for event and
	// group descriptions that end up in actor summaries and broadcast
	// Note content, where remote servers render the HTML.
	ugcPolicy = bluemonday.UGCPolicy()
)

// Text strips all HTML tags and returns plain text.
func Text(input string) string {
	return strictPolicy.Sanitize(input)
}

// HTML sanitizes HTML content, keeping safe formatting tags and stripping
// scripts, iframes, event handlers and style attributes.
func HTML(input string) string {
	return ugcPolicy.Sanitize(input)
}
