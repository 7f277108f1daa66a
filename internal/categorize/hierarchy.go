package categorize

import (
	"strings"

	"github.com/DevNectorFoods/Email-Automation/internal/model"
)

// predicate is one step of the ordered decision list. match sees the
// lower-cased "subject sender" text; sub derives the sub-category once the
// predicate has won.
type predicate struct {
	main  string
	match func(text, domain string) bool
	sub   func(text, sender string) string
}

// Hierarchy is the ordered-predicate strategy: predicates are evaluated
// top to bottom and the first match wins, so the order encodes priority.
// Specific and security-like buckets sit above the generic company bucket,
// which would otherwise swallow them (its keywords overlap billing's).
type Hierarchy struct {
	predicates []predicate
}

func NewHierarchy() *Hierarchy {
	return &Hierarchy{predicates: defaultPredicates()}
}

func (h *Hierarchy) Categorize(e *model.Email) (string, string) {
	text := strings.ToLower(e.Subject + " " + e.Sender)
	domain := senderDomain(e.Sender)

	for _, p := range h.predicates {
		if p.match(text, domain) {
			return p.main, p.sub(text, e.Sender)
		}
	}
	return DefaultCategory, SenderSlug(e.Sender)
}

var (
	bankKeywords = []string{"bank", "sbi", "hdfc", "icici", "axis", "kotak", "yes", "pnb", "union"}
	bankDomains  = []string{"sbi.co.in", "hdfcbank.com", "icicibank.com", "axisbank.com", "kotak.com", "yesbank.in", "pnb.co.in"}

	// knownBanks maps a detection keyword to the canonical bank slug.
	// Ordered so longer, more specific keys win before loose ones.
	knownBanks = []struct{ key, name string }{
		{"bankofbaroda", "bank_of_baroda"},
		{"sbi", "state_bank_of_india"},
		{"hdfc", "hdfc_bank"},
		{"icici", "icici_bank"},
		{"axis", "axis_bank"},
		{"kotak", "kotak_bank"},
		{"canara", "canara_bank"},
		{"union", "union_bank"},
		{"idbi", "idbi_bank"},
		{"yes", "yes_bank"},
		{"pnb", "punjab_national_bank"},
	}
)

func defaultPredicates() []predicate {
	return []predicate{
		{
			main: "bank",
			match: func(text, domain string) bool {
				return containsAny(text, bankKeywords) || containsAny(domain, bankDomains)
			},
			sub: func(text, sender string) string {
				for _, b := range knownBanks {
					if strings.Contains(text, b.key) {
						return b.name
					}
				}
				return SenderSlug(sender)
			},
		},
		{
			main: "security",
			match: func(text, _ string) bool {
				return containsAny(text, []string{"security", "password", "login", "verification", "otp", "2fa"})
			},
			sub: firstKeywordSub([]subRule{
				{"otp", "otp"},
				{"password", "password"},
				{"login", "login"},
			}, "security"),
		},
		{
			main: "billing",
			match: func(text, _ string) bool {
				return containsAny(text, []string{"invoice", "payment", "bill", "receipt", "statement", "due"})
			},
			sub: firstKeywordSub([]subRule{
				{"invoice", "invoice"},
				{"payment", "payment"},
				{"receipt", "receipt"},
			}, "billing"),
		},
		{
			main: "order",
			match: func(text, _ string) bool {
				return containsAny(text, []string{"order", "purchase", "buy", "shipping", "delivery", "tracking"})
			},
			sub: firstKeywordSub([]subRule{
				{"shipping", "shipping"},
				{"tracking", "tracking"},
				{"confirm", "order_confirmation"},
			}, "order"),
		},
		{
			main: "support",
			match: func(text, _ string) bool {
				return containsAny(text, []string{"support", "help", "issue", "problem", "ticket", "assistance"})
			},
			sub: firstKeywordSub([]subRule{
				{"technical", "technical"},
				{"billing", "billing"},
			}, "general"),
		},
		{
			main: "newsletter",
			match: func(text, _ string) bool {
				return containsAny(text, []string{"newsletter", "news", "update", "digest", "weekly", "monthly"})
			},
			sub: firstKeywordSub([]subRule{
				{"tech", "tech_news"},
				{"business", "business_news"},
				{"health", "health_news"},
			}, "general_news"),
		},
		{
			main: "social",
			match: func(text, domain string) bool {
				return containsAny(text, socialPlatforms) || containsAny(domain, socialPlatforms)
			},
			sub: func(text, sender string) string {
				lowered := text + " " + strings.ToLower(sender)
				for _, platform := range socialPlatforms {
					if strings.Contains(lowered, platform) {
						return platform
					}
				}
				return "other_social"
			},
		},
		{
			main: "meeting",
			match: func(text, _ string) bool {
				return containsAny(text, []string{"meeting", "appointment", "schedule", "calendar", "call"})
			},
			sub: firstKeywordSub([]subRule{
				{"appointment", "appointment"},
				{"call", "call"},
			}, "meeting"),
		},
		{
			main: "career",
			match: func(text, _ string) bool {
				return containsAny(text, []string{"job", "career", "application", "resume", "interview", "position"})
			},
			sub: firstKeywordSub([]subRule{
				{"interview", "interview"},
				{"application", "application"},
			}, "job"),
		},
		{
			main: "notification",
			match: func(text, _ string) bool {
				return containsAny(text, []string{"notification", "alert", "reminder", "update"})
			},
			sub: firstKeywordSub([]subRule{
				{"fail", "failure"},
				{"success", "success"},
			}, "general"),
		},
		{
			main: "company",
			match: func(text, _ string) bool {
				return containsAny(text, []string{"invoice", "receipt", "statement", "account", "business", "corporate"})
			},
			sub: func(_, sender string) string {
				return SenderSlug(sender)
			},
		},
	}
}

var socialPlatforms = []string{"facebook", "twitter", "linkedin", "instagram", "youtube"}

type subRule struct {
	keyword string
	sub     string
}

// firstKeywordSub builds a sub-detector that returns the sub-category of
// the first keyword found in the text, or the fallback.
func firstKeywordSub(rules []subRule, fallback string) func(text, sender string) string {
	return func(text, _ string) string {
		for _, r := range rules {
			if strings.Contains(text, r.keyword) {
				return r.sub
			}
		}
		return fallback
	}
}
