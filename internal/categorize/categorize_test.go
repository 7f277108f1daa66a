package categorize

import (
	"regexp"
	"testing"

	"github.com/DevNectorFoods/Email-Automation/internal/model"
)

func testEmail(subject, sender, body string) *model.Email {
	e := model.NewEmail("user@example.com")
	e.Subject = subject
	e.Sender = sender
	e.Body = body
	return e
}

var slugRe = regexp.MustCompile(`^[a-z0-9_]+$`)

func TestSenderSlug(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"display name", "Amazon Web Services <no-reply@aws.amazon.com>", "amazon_web_services"},
		{"quoted display name", `"Quoted Name" <q@example.com>`, "quoted_name"},
		{"bare address", "billing@vendor.com", "billing"},
		{"address only in brackets", "<only@addr.example>", "only"},
		{"domain fallback", "@vendor.example.com", "vendor"},
		{"separators collapse", "John.Doe-Smith jr", "john_doe_smith_jr"},
		{"symbols dropped", "Ops! (Team)", "ops_team"},
		{"empty", "", "unknown_sender"},
		{"nothing usable", "!!!", "unknown_sender"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SenderSlug(tc.in)
			if got != tc.want {
				t.Errorf("SenderSlug(%q) = %q, want %q", tc.in, got, tc.want)
			}
			if !slugRe.MatchString(got) {
				t.Errorf("SenderSlug(%q) = %q, not identifier-safe", tc.in, got)
			}
		})
	}
}

func TestHierarchyBillingBeforeCompany(t *testing.T) {
	h := NewHierarchy()

	// "invoice" is also a company keyword; the billing bucket must win.
	main, sub := h.Categorize(testEmail("Invoice #1234 due", "billing@vendor.com", ""))
	if main != "billing" {
		t.Fatalf("main = %q, want billing", main)
	}
	if sub != "invoice" {
		t.Errorf("sub = %q, want invoice", sub)
	}
}

func TestHierarchyBankDetection(t *testing.T) {
	h := NewHierarchy()

	main, sub := h.Categorize(testEmail("Your SBI monthly e-statement", "alerts@sbi.co.in", ""))
	if main != "bank" {
		t.Fatalf("main = %q, want bank", main)
	}
	if sub != "state_bank_of_india" {
		t.Errorf("sub = %q, want state_bank_of_india", sub)
	}

	// domain-only detection, no bank keyword in the subject
	main, sub = h.Categorize(testEmail("Greetings", "promo@hdfcbank.com", ""))
	if main != "bank" {
		t.Fatalf("domain match: main = %q, want bank", main)
	}
	if sub != "hdfc_bank" {
		t.Errorf("domain match: sub = %q, want hdfc_bank", sub)
	}
}

func TestHierarchySecurityCheckedEarly(t *testing.T) {
	h := NewHierarchy()

	main, sub := h.Categorize(testEmail("Your OTP for account access", "verify@service.example", ""))
	if main != "security" {
		t.Fatalf("main = %q, want security", main)
	}
	if sub != "otp" {
		t.Errorf("sub = %q, want otp", sub)
	}
}

func TestHierarchyBuckets(t *testing.T) {
	h := NewHierarchy()

	cases := []struct {
		subject, sender, wantMain, wantSub string
	}{
		{"Shipping confirmation for order #5", "shop@store.example", "order", "shipping"},
		{"Ticket #42: printer problem", "helpdesk@it.example", "support", "general"},
		{"Weekly tech news digest", "digest@news.example", "newsletter", "tech_news"},
		{"You have new followers", "notify@linkedin.com", "social", "linkedin"},
		{"Appointment reminder for Tuesday", "clinic@health.example", "meeting", "appointment"},
		{"Interview invitation", "hr@jobs.example", "career", "interview"},
		{"Nightly backup alert: failed", "cron@infra.example", "notification", "failure"},
		{"Corporate business review", "contact@megacorp.example", "company", "contact"},
	}

	for _, tc := range cases {
		t.Run(tc.wantMain, func(t *testing.T) {
			main, sub := h.Categorize(testEmail(tc.subject, tc.sender, ""))
			if main != tc.wantMain || sub != tc.wantSub {
				t.Errorf("Categorize(%q, %q) = (%q, %q), want (%q, %q)",
					tc.subject, tc.sender, main, sub, tc.wantMain, tc.wantSub)
			}
		})
	}
}

func TestHierarchyDefault(t *testing.T) {
	h := NewHierarchy()

	main, sub := h.Categorize(testEmail("hello there", "Old Friend <friend@example.com>", ""))
	if main != DefaultCategory {
		t.Fatalf("main = %q, want %q", main, DefaultCategory)
	}
	if sub != "old_friend" {
		t.Errorf("sub = %q, want slug derived from sender", sub)
	}
	if !slugRe.MatchString(sub) {
		t.Errorf("sub = %q, not identifier-safe", sub)
	}
}

func TestHierarchyDeterminism(t *testing.T) {
	h := NewHierarchy()
	e := testEmail("Payment receipt attached", "billing@shop.example", "thanks for your purchase")

	m1, s1 := h.Categorize(e)
	for i := 0; i < 10; i++ {
		m2, s2 := h.Categorize(e)
		if m1 != m2 || s1 != s2 {
			t.Fatalf("run %d: (%q,%q) != (%q,%q)", i, m2, s2, m1, s1)
		}
	}
}

func TestWeightedRulesBillingScenario(t *testing.T) {
	w := NewWeightedRules(nil)

	main, _ := w.Categorize(testEmail("Invoice #1234 due", "billing@vendor.com", ""))
	if main != "billing" {
		t.Errorf("main = %q, want billing", main)
	}
}

func TestWeightedRulesSecurityOutweighsNotification(t *testing.T) {
	w := NewWeightedRules(nil)

	// "alert" pulls the notification rule, but the security rule matches
	// two keywords at double weight and the lowest priority.
	main, _ := w.Categorize(testEmail("Suspicious login alert", "noreply@service.example", ""))
	if main != "security" {
		t.Errorf("main = %q, want security", main)
	}
}

func TestWeightedRulesWordBoundary(t *testing.T) {
	w := NewWeightedRules(nil)

	// "supported" must not count as a "support" keyword hit
	main, _ := w.Categorize(testEmail("Devices supported by the new firmware", "eng@example.com", ""))
	if main == "support" {
		t.Error("keyword matching must respect word boundaries")
	}
}

func TestWeightedRulesTieBreakFirstDeclared(t *testing.T) {
	rules := []Rule{
		{Name: "first", Keywords: []string{"shared"}, Priority: 2, Weight: 1.0},
		{Name: "second", Keywords: []string{"shared"}, Priority: 2, Weight: 1.0},
	}
	w := NewWeightedRules(rules)

	main, _ := w.Categorize(testEmail("a shared keyword", "x@example.com", ""))
	if main != "first" {
		t.Errorf("main = %q, want the first-declared rule", main)
	}
}

func TestWeightedRulesDefault(t *testing.T) {
	w := NewWeightedRules(nil)

	main, sub := w.Categorize(testEmail("totally mundane subject", "Plain Sender <p@example.com>", "nothing matchy here"))
	if main != DefaultCategory {
		t.Errorf("main = %q, want %q", main, DefaultCategory)
	}
	if sub != "plain_sender" {
		t.Errorf("sub = %q, want sender slug", sub)
	}
}

func TestApplyWritesCombinedLabel(t *testing.T) {
	e := testEmail("Invoice #1234 due", "billing@vendor.com", "")
	Apply(NewHierarchy(), e)

	if e.MainCategory != "billing" || e.SubCategory != "invoice" {
		t.Fatalf("Apply = (%q, %q)", e.MainCategory, e.SubCategory)
	}
	if e.Category != "billing_invoice" {
		t.Errorf("combined label = %q, want billing_invoice", e.Category)
	}
}
