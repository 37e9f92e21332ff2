package conversation

import "strings"

const (
	routeFromPrefix = "from "
	routeSeparator  = " to "
)

// ParseRouteRequest splits a directions request written as
// "From <start> to <destination>". Matching is case-insensitive and the first
// " to " ends the start. ok is false when the text does not follow that form.
func ParseRouteRequest(text string) (from, to string, ok bool) {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < len(routeFromPrefix) || !strings.EqualFold(trimmed[:len(routeFromPrefix)], routeFromPrefix) {
		return "", "", false
	}
	rest := trimmed[len(routeFromPrefix):]
	for i := 0; i+len(routeSeparator) <= len(rest); i++ {
		if !strings.EqualFold(rest[i:i+len(routeSeparator)], routeSeparator) {
			continue
		}
		from = strings.TrimSpace(rest[:i])
		to = strings.TrimSpace(rest[i+len(routeSeparator):])
		if from == "" || to == "" {
			return "", "", false
		}
		return from, to, true
	}
	return "", "", false
}
