package sanitize

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// strictPolicy removes all HTML tags and attributes. Guest-supplied fields
// are plain text; captions with markup in them are markup someone pasted or
// injected, not formatting.
var strictPolicy = bluemonday.StrictPolicy()

// Text strips all HTML from guest input. Use for gallery names, captions,
// and contributor names, which are rendered back to other viewers.
func Text(input string) string {
	return strings.TrimSpace(strictPolicy.Sanitize(input))
}
