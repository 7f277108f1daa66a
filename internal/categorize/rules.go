package categorize

import (
	"regexp"
	"strings"

	"github.com/DevNectorFoods/Email-Automation/internal/model"
)

// Rule is one bucket of the flat weighted-scoring strategy.
type Rule struct {
	Name           string
	Keywords       []string
	SenderPatterns []string
	Priority       int // lower = more urgent
	Weight         float64
}

// WeightedRules is the flat rule-scoring strategy: every rule is scored
// against the whole message and the highest non-zero score wins. Ties go
// to the rule declared first.
type WeightedRules struct {
	rules    []Rule
	keywords map[string]*regexp.Regexp
}

func NewWeightedRules(rules []Rule) *WeightedRules {
	if rules == nil {
		rules = DefaultRules()
	}

	w := &WeightedRules{
		rules:    rules,
		keywords: make(map[string]*regexp.Regexp),
	}
	for _, r := range rules {
		for _, kw := range r.Keywords {
			if _, ok := w.keywords[kw]; !ok {
				w.keywords[kw] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`)
			}
		}
	}
	return w
}

// DefaultRules returns the stock rule table.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:           "billing",
			Keywords:       []string{"invoice", "payment", "bill", "billing", "receipt", "charge", "subscription"},
			SenderPatterns: []string{"billing@", "invoice@", "payments@", "noreply@paypal", "stripe"},
			Priority:       1,
			Weight:         1.5,
		},
		{
			Name:           "support",
			Keywords:       []string{"support", "help", "assistance", "ticket", "issue", "problem", "question"},
			SenderPatterns: []string{"support@", "help@", "customer@", "service@"},
			Priority:       2,
			Weight:         1.2,
		},
		{
			Name:           "marketing",
			Keywords:       []string{"newsletter", "promotion", "offer", "sale", "discount", "marketing", "unsubscribe"},
			SenderPatterns: []string{"marketing@", "newsletter@", "promo@", "offers@"},
			Priority:       3,
			Weight:         1.0,
		},
		{
			Name:           "notification",
			Keywords:       []string{"notification", "alert", "reminder", "update", "status", "confirm"},
			SenderPatterns: []string{"no-reply@", "noreply@", "notification@", "alerts@"},
			Priority:       4,
			Weight:         1.3,
		},
		{
			Name:           "security",
			Keywords:       []string{"security", "password", "login", "verification", "authentication", "suspicious"},
			SenderPatterns: []string{"security@", "auth@", "verification@"},
			Priority:       0,
			Weight:         2.0,
		},
	}
}

func (w *WeightedRules) Categorize(e *model.Email) (string, string) {
	text := e.Subject + " " + e.Sender + " " + e.Body
	sender := strings.ToLower(e.Sender)

	best := -1
	bestScore := 0.0
	for i, r := range w.rules {
		score := w.score(r, text, sender)
		if score > bestScore {
			best = i
			bestScore = score
		}
	}

	if best < 0 {
		return DefaultCategory, SenderSlug(e.Sender)
	}
	return w.rules[best].Name, SenderSlug(e.Sender)
}

// score counts word-boundary keyword hits over the whole message and
// substring sender-pattern hits over the sender. The priority bonus only
// applies once the rule matched something, so unmatched rules stay at zero.
func (w *WeightedRules) score(r Rule, text, sender string) float64 {
	keywordMatches := 0
	for _, kw := range r.Keywords {
		if re := w.keywords[kw]; re != nil && re.MatchString(text) {
			keywordMatches++
		}
	}

	senderMatches := 0
	for _, p := range r.SenderPatterns {
		if strings.Contains(sender, p) {
			senderMatches++
		}
	}

	score := float64(keywordMatches)*2*r.Weight + float64(senderMatches)*3*r.Weight
	if score > 0 {
		score += float64(5-r.Priority) * 0.5
	}
	return score
}
