package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen 熔断打开时返回，调用方应跳过本轮直接计为失败
var ErrOpen = errors.New("circuit breaker open")

// Config 熔断器配置
type Config struct {
	// 连续失败多少次后打开熔断器
	FailureThreshold int
	// 打开后多久允许下一次尝试
	CoolDown time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 3,
		CoolDown:         5 * time.Minute,
	}
}

type entry struct {
	failures int
	openedAt time.Time
}

// BreakerSet 为每个 key（邮箱账户）维护一个独立的熔断器。
// 账户连续失败达到阈值后，后续轮次直接跳过该账户，直到冷却期结束。
type BreakerSet struct {
	cfg Config

	mu    sync.Mutex
	state map[string]*entry
}

func NewBreakerSet(cfg Config) *BreakerSet {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = DefaultConfig().CoolDown
	}
	return &BreakerSet{
		cfg:   cfg,
		state: make(map[string]*entry),
	}
}

// Allow reports whether the key may run now. An open breaker lets one
// probe through once the cool-down has elapsed.
func (s *BreakerSet) Allow(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.state[key]
	if !ok || e.failures < s.cfg.FailureThreshold {
		return true
	}
	if time.Since(e.openedAt) >= s.cfg.CoolDown {
		// 冷却结束，放行一次探测；失败会立即重新打开
		e.openedAt = time.Now()
		return true
	}
	return false
}

// Record feeds the outcome of a run back into the key's breaker.
func (s *BreakerSet) Record(key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		delete(s.state, key)
		return
	}

	e, ok := s.state[key]
	if !ok {
		e = &entry{}
		s.state[key] = e
	}
	e.failures++
	if e.failures >= s.cfg.FailureThreshold {
		e.openedAt = time.Now()
	}
}

// Open reports whether the key's breaker is currently rejecting runs,
// without consuming the post-cool-down probe.
func (s *BreakerSet) Open(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.state[key]
	return ok && e.failures >= s.cfg.FailureThreshold && time.Since(e.openedAt) < s.cfg.CoolDown
}
