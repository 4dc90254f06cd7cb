package provider

import (
	"context"
	"sync"
	"time"

	"github.com/geodex/geodex/internal/driver"
	"github.com/geodex/geodex/pkg/errors"
)

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case stateClosed:
		return "CLOSED"
	case stateOpen:
		return "OPEN"
	case stateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// BreakerConfig tunes a Guarded remote.
type BreakerConfig struct {
	// ConsecutiveFailures trips the circuit; zero means 5.
	ConsecutiveFailures int `yaml:"consecutive_failures"`
	// CoolDown is how long the circuit stays open before a probe request
	// is let through; zero means 60s.
	CoolDown time.Duration `yaml:"cool_down"`
	// OnStateChange is called on every transition.
	OnStateChange func(source string, from, to string) `yaml:"-"`
}

// Guarded wraps a Remote with a circuit breaker so a misbehaving service
// fails fast for the rest of a fetch batch instead of burning the retry
// budget on every (tile, date) triple. A genuinely-absent answer counts
// as success: only transport errors trip the circuit.
type Guarded struct {
	remote Remote
	source string
	cfg    BreakerConfig

	mu       sync.Mutex
	state    breakerState
	failures int
	openedAt time.Time
}

// NewGuarded wraps a remote. source names the circuit in errors and state
// change callbacks.
func NewGuarded(remote Remote, source string, cfg BreakerConfig) *Guarded {
	if cfg.ConsecutiveFailures <= 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = 60 * time.Second
	}
	return &Guarded{remote: remote, source: source, cfg: cfg}
}

// QueryService consults the wrapped remote unless the circuit is open.
func (g *Guarded) QueryService(ctx context.Context, at *driver.AssetType, tile string, date time.Time) (*Descriptor, error) {
	if err := g.admit(); err != nil {
		return nil, err
	}
	desc, err := g.remote.QueryService(ctx, at, tile, date)
	g.record(err)
	return desc, err
}

// Download fetches through the wrapped remote unless the circuit is open.
func (g *Guarded) Download(ctx context.Context, desc *Descriptor, destDir string) (string, error) {
	if err := g.admit(); err != nil {
		return "", err
	}
	path, err := g.remote.Download(ctx, desc, destDir)
	g.record(err)
	return path, err
}

// State reports the current circuit state name.
func (g *Guarded) State() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.currentState().String()
}

// currentState folds cool-down expiry into the stored state. Callers hold
// the mutex.
func (g *Guarded) currentState() breakerState {
	if g.state == stateOpen && time.Since(g.openedAt) >= g.cfg.CoolDown {
		return stateHalfOpen
	}
	return g.state
}

func (g *Guarded) admit() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch g.currentState() {
	case stateOpen:
		return errors.Newf(errors.ErrCodeFetchFailed,
			"%s circuit open after %d consecutive failures", g.source, g.failures).
			WithRetryable(true)
	case stateHalfOpen:
		g.transition(stateHalfOpen)
	}
	return nil
}

func (g *Guarded) record(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		g.failures = 0
		if g.state != stateClosed {
			g.transition(stateClosed)
		}
		return
	}
	g.failures++
	if g.state == stateHalfOpen || g.failures >= g.cfg.ConsecutiveFailures {
		g.openedAt = time.Now()
		g.transition(stateOpen)
	}
}

func (g *Guarded) transition(to breakerState) {
	from := g.state
	if from == to {
		return
	}
	g.state = to
	if g.cfg.OnStateChange != nil {
		g.cfg.OnStateChange(g.source, from.String(), to.String())
	}
}
