package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

var errFetch = errors.New("connect refused")

func TestAllowFreshKey(t *testing.T) {
	s := NewBreakerSet(DefaultConfig())
	if !s.Allow("a@example.com") {
		t.Fatal("fresh key should be allowed")
	}
}

func TestOpensAfterThreshold(t *testing.T) {
	s := NewBreakerSet(Config{FailureThreshold: 2, CoolDown: time.Hour})

	s.Record("a@example.com", errFetch)
	if !s.Allow("a@example.com") {
		t.Fatal("one failure below threshold should still allow")
	}

	s.Record("a@example.com", errFetch)
	if s.Allow("a@example.com") {
		t.Fatal("breaker should be open after reaching the threshold")
	}
	if !s.Open("a@example.com") {
		t.Fatal("Open should report a rejecting breaker")
	}

	// other keys are independent
	if !s.Allow("b@example.com") {
		t.Fatal("unrelated key should be unaffected")
	}
}

func TestSuccessResets(t *testing.T) {
	s := NewBreakerSet(Config{FailureThreshold: 2, CoolDown: time.Hour})

	s.Record("a@example.com", errFetch)
	s.Record("a@example.com", nil)
	s.Record("a@example.com", errFetch)
	if !s.Allow("a@example.com") {
		t.Fatal("success in between should have reset the failure streak")
	}
}

func TestCoolDownProbe(t *testing.T) {
	s := NewBreakerSet(Config{FailureThreshold: 1, CoolDown: 10 * time.Millisecond})

	s.Record("a@example.com", errFetch)
	if s.Allow("a@example.com") {
		t.Fatal("breaker should be open right after the failure")
	}

	time.Sleep(20 * time.Millisecond)
	if !s.Allow("a@example.com") {
		t.Fatal("cool-down elapsed, one probe should pass")
	}
	if s.Allow("a@example.com") {
		t.Fatal("second call before a Record should stay rejected")
	}

	s.Record("a@example.com", nil)
	if !s.Allow("a@example.com") {
		t.Fatal("successful probe should close the breaker")
	}
}
