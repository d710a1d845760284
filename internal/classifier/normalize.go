package classifier

import "strings"

// Normalize lower-cases s, replaces every character outside [a-z0-9 ] with a
// space, collapses whitespace runs and trims. Normalize(Normalize(s)) ==
// Normalize(s) for every s.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	space := true // suppresses leading spaces
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}

	return strings.TrimRight(b.String(), " ")
}
