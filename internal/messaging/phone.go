package messaging

import "strings"

// NormalizeWAID reduces a phone number as an operator might type it
// ("+1 (555) 010-2000") to the digits-only form WhatsApp uses for wa_id and
// the "to" field. It returns "" when no digits remain.
func NormalizeWAID(value string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(value) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
