package fx

import (
	"sync"
	"time"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

type BreakerSettings struct {
	WindowSize           int
	MinimumCalls         int
	FailureRateThreshold float64 // percent
	OpenWait             time.Duration
	HalfOpenCalls        int
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		WindowSize:           10,
		MinimumCalls:         5,
		FailureRateThreshold: 50,
		OpenWait:             10 * time.Second,
		HalfOpenCalls:        3,
	}
}

// CircuitBreaker is a count-based breaker. Callers ask Allow before each attempt and
// report the result with Record, passing back the generation Allow returned. It is safe
// for concurrent use.
type CircuitBreaker struct {
	mu       sync.Mutex
	settings BreakerSettings
	now      func() time.Time

	state    State
	openedAt time.Time
	// bumped on every state change; results admitted under an older generation are ignored
	generation uint64

	// ring of the last WindowSize outcomes, true = failure
	window   []bool
	next     int
	recorded int
	failures int

	halfOpenInFlight int
}

func NewCircuitBreaker(settings BreakerSettings, now func() time.Time) *CircuitBreaker {
	d := DefaultBreakerSettings()
	if settings.WindowSize <= 0 {
		settings.WindowSize = d.WindowSize
	}
	if settings.MinimumCalls <= 0 {
		settings.MinimumCalls = d.MinimumCalls
	}
	if settings.MinimumCalls > settings.WindowSize {
		settings.MinimumCalls = settings.WindowSize
	}
	if settings.FailureRateThreshold <= 0 {
		settings.FailureRateThreshold = d.FailureRateThreshold
	}
	if settings.OpenWait <= 0 {
		settings.OpenWait = d.OpenWait
	}
	if settings.HalfOpenCalls <= 0 {
		settings.HalfOpenCalls = d.HalfOpenCalls
	}
	if now == nil {
		now = time.Now
	}
	return &CircuitBreaker{
		settings: settings,
		now:      now,
		window:   make([]bool, settings.WindowSize),
	}
}

func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	return b.state
}

// Allow reports whether a call may go out now, together with the generation the call
// belongs to.
func (b *CircuitBreaker) Allow() (uint64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()

	switch b.state {
	case StateOpen:
		return b.generation, false
	case StateHalfOpen:
		if b.halfOpenInFlight >= b.settings.HalfOpenCalls {
			return b.generation, false
		}
		b.halfOpenInFlight++
		return b.generation, true
	default:
		return b.generation, true
	}
}

// Record stores the outcome of a call that Allow let through. Outcomes of calls admitted
// before the last state change are dropped.
func (b *CircuitBreaker) Record(generation uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()

	if generation != b.generation {
		return
	}

	switch b.state {
	case StateHalfOpen:
		if b.halfOpenInFlight > 0 {
			b.halfOpenInFlight--
		}
		if success {
			b.close()
		} else {
			b.trip()
		}
	case StateClosed:
		b.push(!success)
		if b.recorded >= b.settings.MinimumCalls && b.failureRate() >= b.settings.FailureRateThreshold {
			b.trip()
		}
	}
}

func (b *CircuitBreaker) advance() {
	if b.state == StateOpen && !b.now().Before(b.openedAt.Add(b.settings.OpenWait)) {
		b.state = StateHalfOpen
		b.halfOpenInFlight = 0
		b.generation++
	}
}

func (b *CircuitBreaker) push(failed bool) {
	if b.recorded == len(b.window) {
		if b.window[b.next] {
			b.failures--
		}
	} else {
		b.recorded++
	}
	b.window[b.next] = failed
	if failed {
		b.failures++
	}
	b.next = (b.next + 1) % len(b.window)
}

func (b *CircuitBreaker) failureRate() float64 {
	if b.recorded == 0 {
		return 0
	}
	return float64(b.failures) * 100 / float64(b.recorded)
}

func (b *CircuitBreaker) trip() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.halfOpenInFlight = 0
	b.generation++
}

func (b *CircuitBreaker) close() {
	b.state = StateClosed
	b.halfOpenInFlight = 0
	b.generation++
	b.recorded = 0
	b.failures = 0
	b.next = 0
	clear(b.window)
}
