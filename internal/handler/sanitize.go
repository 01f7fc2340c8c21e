package handler

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// textPolicy allows no markup at all. Script and style contents are
// dropped along with their tags.
var textPolicy = bluemonday.StrictPolicy()

// maxSanitizePasses bounds the unescape/strip loop below.
const maxSanitizePasses = 3

// plainText strips every HTML element from s and trims it. The result is
// stored unescaped, so "Tom & Jerry" stays as typed; entity-encoded markup
// is decoded and stripped again until nothing changes.
func plainText(s string) string {
	for i := 0; i < maxSanitizePasses; i++ {
		next := html.UnescapeString(textPolicy.Sanitize(s))
		if next == s {
			break
		}
		s = next
	}
	return strings.TrimSpace(s)
}

// plainTextPtr is plainText for optional fields.
func plainTextPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := plainText(*s)
	return &v
}
