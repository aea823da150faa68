package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goplus/swbuild/internal/par"
)

// DefaultTimeout bounds a single probe.
const DefaultTimeout = 10 * time.Second

// Runner runs a program and returns its standard output.
// It must honor ctx cancellation by stopping the program.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Cache probes compilers at most once per Identity.
type Cache struct {
	runner  Runner
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time

	entries par.Cache[string, *Result]

	mu       sync.Mutex
	degraded []*DegradedError
}

// New returns an empty Cache. A nil runner runs programs with ExecRunner,
// a non-positive timeout means DefaultTimeout and a nil logger means
// slog.Default().
func New(runner Runner, timeout time.Duration, logger *slog.Logger) *Cache {
	if runner == nil {
		runner = ExecRunner{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		runner:  runner,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
}

// Probe returns the Result for id, probing the compiler if no caller has
// done so yet. Callers racing on the same id wait for the one probe in
// flight. Probe never fails; see Result.Warning.
func (c *Cache) Probe(ctx context.Context, id Identity) *Result {
	return c.entries.Do(id.Key(), func() *Result {
		return c.probe(ctx, id)
	})
}

// Seed populates the entry for id with r, as if it had been probed.
// It reports false, leaving the cache untouched, if id already has an entry.
func (c *Cache) Seed(id Identity, r *Result) bool {
	return c.entries.Store(id.Key(), r)
}

// Degraded returns one warning per identity whose probe degraded, ordered
// by identity.
func (c *Cache) Degraded() []*DegradedError {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := slices.Clone(c.degraded)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Identity.Key() < out[j].Identity.Key()
	})
	return out
}

// probe runs detached from the cancellation of ctx: the Result is shared by
// every caller, so only the probe's own deadline may degrade it.
func (c *Cache) probe(ctx context.Context, id Identity) *Result {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	args := append(slices.Clone(id.Flags), "--version")
	start := c.now()
	out, err := c.runner.Run(ctx, id.Compiler, args...)
	if err != nil {
		status := StatusFailed
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			status = StatusTimeout
			err = fmt.Errorf("no answer within %s: %w", c.timeout, err)
		}
		return c.degrade(id, status, err, start)
	}

	version, ok := ParseVersion(out)
	if !ok {
		line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
		return c.degrade(id, StatusFailed, fmt.Errorf("unrecognized version output %q", line), start)
	}

	r := NewResult(version, start)
	c.logger.Debug("probed compiler",
		"compiler", id.String(),
		"version", version,
		"capabilities", len(r.Capabilities),
		"elapsed", c.now().Sub(start),
	)
	return r
}

func (c *Cache) degrade(id Identity, status Status, err error, at time.Time) *Result {
	warning := &DegradedError{Identity: id, Status: status, Err: err}
	c.mu.Lock()
	c.degraded = append(c.degraded, warning)
	c.mu.Unlock()

	c.logger.Warn("compiler probe degraded", "compiler", id.String(), "status", status.String(), "error", err)
	return &Result{
		Version:      UnknownVersion,
		Capabilities: map[Capability]bool{},
		MeasuredAt:   at,
		Status:       status,
		Warning:      warning,
	}
}
