// Package hybrid contains the recognition coordinator: it owns lazy handles
// to every capability provider, walks the fallback chain until a result
// passes the acceptance gate, and releases expensive resources
// deterministically.
package hybrid

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/samaR7Q/Handwritten-images-to-word-docx/pkg/groq"
	"github.com/samaR7Q/Handwritten-images-to-word-docx/pkg/ollama"
	"github.com/samaR7Q/Handwritten-images-to-word-docx/pkg/providers"
	"github.com/samaR7Q/Handwritten-images-to-word-docx/pkg/tesseract"
)

// Acceptance gate thresholds. Confidence is deliberately low because dense
// handwriting legitimately recognizes at low-but-nonzero confidence; length
// is the stronger failure signal, near-empty output means the backend gave
// up.
const (
	minAcceptLength     = 50
	minAcceptConfidence = 0.10
)

// Accepted reports whether a result is good enough to stop the fallback
// chain.
func Accepted(r providers.Result) bool {
	return r.Err == nil && len(r.Text) > minAcceptLength && r.Confidence > minAcceptConfidence
}

// Availability is the per-provider construction state. It is set once at
// first use and never re-checked: a failed model load or missing credential
// is permanent for the process lifetime.
type Availability int

const (
	AvailabilityUnknown Availability = iota
	AvailabilityReady
	AvailabilityUnavailable
)

// Config selects the recognition policy for one coordinator instance.
type Config struct {
	// PreferLocal skips the remote backend in auto mode.
	PreferLocal bool
	// Forced restricts recognition to a single strategy. A forced strategy
	// never falls back: callers opting into a specific backend want
	// deterministic, debuggable behavior, not silent substitution.
	Forced providers.Strategy

	// RemoteModel, PrimaryModel and SecondaryModel override the backend
	// model tags; empty means the backend default.
	RemoteModel    string
	PrimaryModel   string
	SecondaryModel string

	// KeepLocalResident disables evicting a previously-loaded local model
	// before using another one. Eviction is on by default because typical
	// hardware cannot hold two vision models in accelerator memory at once.
	KeepLocalResident bool
}

// Fingerprint derives the cache key for coordinator reuse. Only the fields
// that change recognition behavior participate.
func (c Config) Fingerprint() string {
	forced := c.Forced
	if forced == "" {
		forced = providers.StrategyAuto
	}
	return fmt.Sprintf("preferLocal=%t;forced=%s", c.PreferLocal, forced)
}

type entry struct {
	provider     providers.Provider
	availability Availability
	local        bool
}

// Coordinator implements the hybrid fallback policy. Providers are
// constructed lazily, exactly once, on first need, and reused across
// repeated Recognize calls on the same instance.
type Coordinator struct {
	cfg Config

	mu            sync.Mutex
	entries       map[providers.Strategy]*entry
	constructors  map[providers.Strategy]func() (providers.Provider, error)
	residentLocal providers.Strategy
}

// New builds a coordinator for the given policy. No provider is constructed
// until a recognition call actually needs it.
func New(cfg Config) *Coordinator {
	c := &Coordinator{
		cfg:     cfg,
		entries: make(map[providers.Strategy]*entry),
	}
	c.constructors = map[providers.Strategy]func() (providers.Provider, error){
		providers.StrategyGroq: func() (providers.Provider, error) {
			return groq.New(cfg.RemoteModel)
		},
		providers.StrategyLlava: func() (providers.Provider, error) {
			return ollama.NewPrimary(cfg.PrimaryModel)
		},
		providers.StrategyMoondream: func() (providers.Provider, error) {
			return ollama.NewSecondary(cfg.SecondaryModel)
		},
		providers.StrategyTesseract: func() (providers.Provider, error) {
			return tesseract.New()
		},
	}
	return c
}

func isLocal(s providers.Strategy) bool {
	return s == providers.StrategyLlava || s == providers.StrategyMoondream
}

// order is the auto-mode chain: remote first (unless local is preferred),
// then local models richer-first, then the legacy reader.
func (c *Coordinator) order() []providers.Strategy {
	chain := make([]providers.Strategy, 0, 4)
	if !c.cfg.PreferLocal {
		chain = append(chain, providers.StrategyGroq)
	}
	return append(chain,
		providers.StrategyLlava,
		providers.StrategyMoondream,
		providers.StrategyTesseract,
	)
}

// Recognize extracts text from the image. In auto mode it tries providers in
// order and returns the first result passing the acceptance gate; when every
// provider has been tried it returns the last non-empty below-threshold
// result if any, otherwise the canonical all-failed result. With a forced
// strategy only that provider is attempted and its result, good or bad, is
// returned as-is.
func (c *Coordinator) Recognize(ctx context.Context, imagePath string) providers.Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	if forced := c.cfg.Forced; forced != "" && forced != providers.StrategyAuto {
		return c.attempt(ctx, forced, imagePath)
	}

	var last providers.Result
	haveLast := false

	for _, strategy := range c.order() {
		res := c.attempt(ctx, strategy, imagePath)
		if Accepted(res) {
			slog.Info("Recognition accepted", "strategy", strategy, "method", res.Method,
				"chars", len(res.Text), "confidence", res.Confidence)
			return res
		}

		if res.Err != nil {
			slog.Warn("Recognition attempt failed", "strategy", strategy, "err", res.Err)
		} else {
			slog.Warn("Recognition below acceptance gate", "strategy", strategy,
				"chars", len(res.Text), "confidence", res.Confidence)
			if res.Text != "" {
				last = res
				haveLast = true
			}
		}
	}

	if haveLast {
		return last
	}

	return providers.Result{
		Method: providers.MethodAllFailed,
		Err:    fmt.Errorf("all recognition methods failed"),
	}
}

// attempt materializes the provider for a strategy if needed and runs it.
func (c *Coordinator) attempt(ctx context.Context, strategy providers.Strategy, imagePath string) providers.Result {
	p := c.acquire(strategy)
	if p == nil {
		return providers.Failure(string(strategy), fmt.Errorf("provider %s unavailable", strategy))
	}

	if isLocal(strategy) {
		c.evictOtherLocal(strategy)
		c.residentLocal = strategy
	}

	return p.Recognize(ctx, imagePath)
}

// acquire returns the provider for a strategy, constructing it on first use.
// A construction failure marks the strategy permanently unavailable.
func (c *Coordinator) acquire(strategy providers.Strategy) providers.Provider {
	e, ok := c.entries[strategy]
	if !ok {
		e = &entry{local: isLocal(strategy)}
		c.entries[strategy] = e
	}

	switch e.availability {
	case AvailabilityReady:
		return e.provider
	case AvailabilityUnavailable:
		return nil
	}

	construct, ok := c.constructors[strategy]
	if !ok {
		e.availability = AvailabilityUnavailable
		return nil
	}

	if e.local {
		// Free accelerator memory before the expensive load.
		c.evictOtherLocal(strategy)
	}

	p, err := construct()
	if err != nil {
		slog.Warn("Provider unavailable for this session", "strategy", strategy, "err", err)
		e.availability = AvailabilityUnavailable
		return nil
	}

	slog.Debug("Provider constructed", "strategy", strategy, "name", p.Name())
	e.provider = p
	e.availability = AvailabilityReady
	return p
}

// evictOtherLocal releases the weights of a previously-loaded local model so
// two large models are never resident at once. The evicted provider instance
// and its availability survive; only accelerator memory is reclaimed.
func (c *Coordinator) evictOtherLocal(next providers.Strategy) {
	if c.cfg.KeepLocalResident {
		return
	}
	prev := c.residentLocal
	if prev == "" || prev == next {
		return
	}
	if e, ok := c.entries[prev]; ok && e.provider != nil {
		if err := e.provider.Release(); err != nil {
			slog.Warn("Failed to evict local model", "strategy", prev, "err", err)
		} else {
			slog.Debug("Evicted local model before loading next", "strategy", prev)
		}
	}
	c.residentLocal = ""
}

// Cleanup releases exactly the providers that were actually materialized.
// It is idempotent: providers guard their own Release, and never-constructed
// strategies are skipped.
func (c *Coordinator) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for strategy, e := range c.entries {
		if e.provider == nil {
			continue
		}
		if err := e.provider.Release(); err != nil {
			slog.Warn("Provider release failed", "strategy", strategy, "err", err)
		}
	}
	c.residentLocal = ""
}

// Materialized reports whether a provider was constructed on this instance.
func (c *Coordinator) Materialized(strategy providers.Strategy) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[strategy]
	return ok && e.provider != nil
}

// Availability reports the tri-state construction status for a strategy.
func (c *Coordinator) Availability(strategy providers.Strategy) Availability {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[strategy]
	if !ok {
		return AvailabilityUnknown
	}
	return e.availability
}
