package resolver

import "strings"

const (
	HandleDomain      = "monopay.app"
	minHandleLocalLen = 3
	maxHandleLocalLen = 32
)

// NormalizeHandle lowercases, strips a leading '@' and appends the domain:
// "@Priya" -> "priya@monopay.app". The local part must be 3-32 chars of [a-z0-9._].
func NormalizeHandle(raw string) (string, bool) {
	h := strings.ToLower(strings.TrimSpace(raw))
	h = strings.TrimPrefix(h, "@")
	h = strings.TrimSuffix(h, "@"+HandleDomain)

	if len(h) < minHandleLocalLen || len(h) > maxHandleLocalLen {
		return "", false
	}
	for _, c := range h {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '.', c == '_':
		default:
			return "", false
		}
	}
	return h + "@" + HandleDomain, true
}

// LocalPart returns "priya" for "priya@monopay.app".
func LocalPart(handle string) string {
	if i := strings.IndexByte(handle, '@'); i >= 0 {
		return handle[:i]
	}
	return handle
}
