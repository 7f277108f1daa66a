package categorize

import (
	"strings"

	"github.com/DevNectorFoods/Email-Automation/internal/model"
)

// DefaultCategory is the neutral bucket for messages nothing matches.
const DefaultCategory = "general"

// Strategy assigns a (main, sub) category pair to a decoded message.
// Implementations never fail; a message nothing matches lands in the
// default bucket with a sub-category derived from its sender.
type Strategy interface {
	Categorize(e *model.Email) (main, sub string)
}

// Apply runs the strategy and writes the result onto the record, including
// the combined label the UI filters on.
func Apply(s Strategy, e *model.Email) {
	main, sub := s.Categorize(e)
	e.MainCategory = main
	e.SubCategory = sub
	e.Category = main + "_" + sub
}

// SenderSlug normalizes a sender into an identifier-safe name: the display
// name before the address, else the local part, else the first domain
// label. The result only ever contains [a-z0-9_].
func SenderSlug(sender string) string {
	s := strings.TrimSpace(sender)
	if s == "" {
		return "unknown_sender"
	}

	name := s
	if i := strings.Index(s, "<"); i >= 0 {
		name = strings.TrimSpace(s[:i])
		if name == "" {
			name = strings.Trim(s[i:], "<> ")
		}
	}
	name = strings.Trim(name, `"' `)

	if i := strings.Index(name, "@"); i >= 0 {
		if local := name[:i]; local != "" {
			name = local
		} else if domain := name[i+1:]; domain != "" {
			name = strings.SplitN(domain, ".", 2)[0]
		}
	}

	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == '-', r == '.', r == ' ':
			b.WriteRune('_')
		}
	}

	if b.Len() == 0 {
		return "unknown_sender"
	}
	return b.String()
}

// senderDomain extracts the lower-cased domain of the sender address.
func senderDomain(sender string) string {
	addr := sender
	if i := strings.Index(sender, "<"); i >= 0 {
		addr = strings.Trim(sender[i:], "<> ")
	}
	if j := strings.LastIndex(addr, "@"); j >= 0 {
		return strings.ToLower(strings.Trim(addr[j+1:], "> "))
	}
	return ""
}

// containsAny reports whether text holds any of the needles.
func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}
