// Package discovery asks the backend which models currently exist for a
// credential. Discovery is best-effort: any failure yields the configured
// default list, so generation never depends on the listing endpoint.
package discovery

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hpnssflw/voicekeeper/internal/credentials"
)

// Lister is the backend model-listing call. Implemented by gemini.Client.
type Lister interface {
	ListModels(ctx context.Context, version, apiKey string) ([]string, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Config controls listing, fallback and the shape of the returned list.
type Config struct {
	// ListVersion is the API version whose models endpoint is queried.
	ListVersion string
	// DefaultModels is returned when listing fails.
	DefaultModels []string
	// PriorityModel is always placed first, whatever discovery returns.
	PriorityModel string
	// MaxModels caps the returned list; zero means no cap.
	MaxModels int
	// TTL bounds how long a successful listing is reused.
	TTL time.Duration
	// Timeout bounds one listing call; zero means DefaultTimeout. A listing
	// that runs out of time falls back like any other failure.
	Timeout time.Duration
}

// DefaultTimeout bounds a listing call when Config.Timeout is unset.
const DefaultTimeout = 10 * time.Second

// catalog is an immutable cache entry; it is replaced, never modified.
type catalog struct {
	models    []string
	fetchedAt time.Time
}

// Discoverer lists models per credential with a TTL cache keyed by the
// credential fingerprint.
type Discoverer struct {
	lister Lister
	cfg    Config
	clock  Clock
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]*catalog
	group singleflight.Group
}

func New(lister Lister, cfg Config) *Discoverer {
	return NewWithClock(lister, cfg, realClock{})
}

// NewWithClock creates a Discoverer with a custom clock (for testing).
func NewWithClock(lister Lister, cfg Config, clock Clock) *Discoverer {
	return &Discoverer{
		lister: lister,
		cfg:    cfg,
		clock:  clock,
		logger: slog.Default().With("component", "discovery"),
		cache:  make(map[string]*catalog),
	}
}

// ListModels returns the ordered model IDs to try for cred. It never fails.
func (d *Discoverer) ListModels(ctx context.Context, cred credentials.Credential) []string {
	fp := cred.Fingerprint()

	if c := d.cached(fp); c != nil {
		return append([]string(nil), c.models...)
	}

	v, _, _ := d.group.Do(fp, func() (any, error) {
		if c := d.cached(fp); c != nil {
			return c.models, nil
		}

		timeout := d.cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		listCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		listed, err := d.lister.ListModels(listCtx, d.cfg.ListVersion, cred.Key)
		if err != nil || len(listed) == 0 {
			if err != nil {
				d.logger.Warn("model discovery failed, using defaults", "provider", cred.Provider, "fingerprint", fp, "error", err)
			} else {
				d.logger.Warn("model discovery returned no generation models, using defaults", "provider", cred.Provider, "fingerprint", fp)
			}
			return d.shape(d.cfg.DefaultModels), nil
		}

		models := d.shape(listed)
		d.mu.Lock()
		d.cache[fp] = &catalog{models: models, fetchedAt: d.clock.Now()}
		d.mu.Unlock()
		d.logger.Debug("models discovered", "provider", cred.Provider, "fingerprint", fp, "count", len(models))
		return models, nil
	})

	return append([]string(nil), v.([]string)...)
}

func (d *Discoverer) cached(fp string) *catalog {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.cache[fp]
	if !ok || d.clock.Now().After(c.fetchedAt.Add(d.cfg.TTL)) {
		return nil
	}
	return c
}

// shape prepends the priority model, drops blanks and duplicates while
// preserving order, and applies the MaxModels cap.
func (d *Discoverer) shape(models []string) []string {
	out := make([]string, 0, len(models)+1)
	seen := make(map[string]bool, len(models)+1)
	add := func(m string) {
		m = strings.TrimSpace(m)
		if m == "" || seen[m] {
			return
		}
		seen[m] = true
		out = append(out, m)
	}

	add(d.cfg.PriorityModel)
	for _, m := range models {
		add(m)
	}

	if d.cfg.MaxModels > 0 && len(out) > d.cfg.MaxModels {
		out = out[:d.cfg.MaxModels]
	}
	return out
}
