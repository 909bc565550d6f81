package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned when the breaker rejects a call outright.
var ErrOpen = errors.New("circuit breaker is open")

// State 熔断器状态
type State int

const (
	StateClosed   State = iota // 正常放行
	StateOpen                  // 熔断，直接拒绝
	StateHalfOpen              // 试探恢复，放行少量请求
)

// Config 熔断器配置
type Config struct {
	// 连续失败多少次后打开
	FailureThreshold int
	// 半开状态下成功多少次后关闭
	SuccessThreshold int
	// 打开状态持续多久后进入半开
	OpenTimeout time.Duration
	// 半开状态下最多放行的请求数
	HalfOpenMaxRequests int
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		OpenTimeout:         30 * time.Second,
		HalfOpenMaxRequests: 3,
	}
}

// Breaker guards a downstream dependency. A run of failures opens the
// breaker; after OpenTimeout it lets a few probe calls through and closes
// again once enough of them succeed.
type Breaker struct {
	cfg Config

	mu            sync.Mutex
	state         State
	failures      int
	probeSuccess  int
	probeInFlight int
	changedAt     time.Time
}

func New(cfg Config) *Breaker {
	return &Breaker{
		cfg:       cfg,
		state:     StateClosed,
		changedAt: time.Now(),
	}
}

// Execute runs fn under breaker protection. When the breaker is open the
// call is rejected with ErrOpen without invoking fn.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.before(); err != nil {
		return err
	}

	err := fn()
	b.after(err)
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && time.Since(b.changedAt) >= b.cfg.OpenTimeout {
		b.transition(StateHalfOpen)
	}

	switch b.state {
	case StateOpen:
		return ErrOpen
	case StateHalfOpen:
		if b.probeInFlight >= b.cfg.HalfOpenMaxRequests {
			return ErrOpen
		}
		b.probeInFlight++
	}
	return nil
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.probeInFlight--
	}

	if err != nil {
		b.failures++
		// 半开状态下任何失败立即重新打开
		if b.state == StateHalfOpen || (b.state == StateClosed && b.failures >= b.cfg.FailureThreshold) {
			b.transition(StateOpen)
		}
		return
	}

	b.failures = 0
	if b.state == StateHalfOpen {
		b.probeSuccess++
		if b.probeSuccess >= b.cfg.SuccessThreshold {
			b.transition(StateClosed)
		}
	}
}

// transition assumes b.mu is held.
func (b *Breaker) transition(s State) {
	b.state = s
	b.changedAt = time.Now()
	b.failures = 0
	b.probeSuccess = 0
	b.probeInFlight = 0
}

// State 获取当前状态（线程安全）
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset 重置熔断器
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateClosed)
}
