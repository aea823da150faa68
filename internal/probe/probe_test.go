package probe

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeRunner struct {
	calls  atomic.Int32
	delay  time.Duration
	out    string
	err    error
	mu     sync.Mutex
	gotArg [][]string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.gotArg = append(f.gotArg, append([]string{name}, args...))
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.out), nil
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		out  string
		want string
		ok   bool
	}{
		{"Swift version 5.9.2 (swift-5.9.2-RELEASE)\nTarget: x86_64-unknown-linux-gnu\n", "5.9.2", true},
		{"swift-driver version: 1.87.3 Apple Swift version 5.9.2 (swiftlang-5.9.2.2.56 clang-1500.1.0.2.5)\n", "5.9.2", true},
		{"Swift version 6.0 (swift-6.0-RELEASE)", "6.0", true},
		{"Apple Swift version 5.10 (swiftlang-5.10.0.13)", "5.10", true},
		{"clang version 17.0.0", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseVersion([]byte(tt.out))
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseVersion(%q) = %q, %v; want %q, %v", tt.out, got, ok, tt.want, tt.ok)
		}
	}
}

func TestCapabilities(t *testing.T) {
	tests := []struct {
		version string
		has     []Capability
		hasNot  []Capability
	}{
		{"5.6", nil, []Capability{ConcurrencySyntax, RegexLiterals, UpcomingFeatures, CxxInteropMode}},
		{"5.7.1", []Capability{ConcurrencySyntax, RegexLiterals}, []Capability{UpcomingFeatures, CxxInteropMode}},
		{"5.8", []Capability{UpcomingFeatures}, []Capability{CxxInteropMode, ClangHeaderPath}},
		{"5.10", []Capability{CxxInteropMode, ClangHeaderPath, RegexLiterals}, nil},
		{"6.0", []Capability{ConcurrencySyntax, RegexLiterals, UpcomingFeatures, CxxInteropMode, ClangHeaderPath}, nil},
		{"garbage", nil, []Capability{ConcurrencySyntax}},
	}
	for _, tt := range tests {
		r := NewResult(tt.version, time.Time{})
		for _, c := range tt.has {
			if !r.Has(c) {
				t.Errorf("version %s: Has(%s) = false", tt.version, c)
			}
		}
		for _, c := range tt.hasNot {
			if r.Has(c) {
				t.Errorf("version %s: Has(%s) = true", tt.version, c)
			}
		}
	}
}

func TestProbeConcurrentSingleInvocation(t *testing.T) {
	runner := &fakeRunner{delay: 50 * time.Millisecond, out: "Swift version 5.9.2 (swift-5.9.2-RELEASE)\n"}
	c := New(runner, time.Second, discard)
	id := Identity{Compiler: "/usr/bin/swiftc", Flags: []string{"-target", "arm64-apple-macosx13.0"}}

	const callers = 32
	results := make([]*Result, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Probe(context.Background(), id)
		}(i)
	}
	wg.Wait()

	if n := runner.calls.Load(); n != 1 {
		t.Fatalf("runner called %d times, want 1", n)
	}
	for i, r := range results {
		if r != results[0] {
			t.Fatalf("caller %d got a different result", i)
		}
	}
	if results[0].Version != "5.9.2" || !results[0].Has(CxxInteropMode) {
		t.Errorf("result = %+v", results[0])
	}
	want := []string{"/usr/bin/swiftc", "-target", "arm64-apple-macosx13.0", "--version"}
	got := runner.gotArg[0]
	if len(got) != len(want) {
		t.Fatalf("args = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("args = %v, want %v", got, want)
		}
	}
}

func TestProbeDistinctIdentities(t *testing.T) {
	runner := &fakeRunner{out: "Swift version 5.8 (swift-5.8-RELEASE)"}
	c := New(runner, time.Second, discard)
	a := Identity{Compiler: "/usr/bin/swiftc"}
	b := Identity{Compiler: "/usr/bin/swiftc", Flags: []string{"-target", "x86_64-unknown-linux-gnu"}}
	if a.Key() == b.Key() {
		t.Fatal("identities with different flags share a key")
	}
	c.Probe(context.Background(), a)
	c.Probe(context.Background(), b)
	c.Probe(context.Background(), a)
	if n := runner.calls.Load(); n != 2 {
		t.Errorf("runner called %d times, want 2", n)
	}
}

func TestProbeFailureDegrades(t *testing.T) {
	runner := &fakeRunner{err: errors.New("exit status 1")}
	c := New(runner, time.Second, discard)
	id := Identity{Compiler: "/opt/swift/bin/swiftc"}

	r := c.Probe(context.Background(), id)
	if !r.Degraded() || r.Status != StatusFailed {
		t.Fatalf("status = %v, want failed", r.Status)
	}
	if r.Version != UnknownVersion {
		t.Errorf("Version = %q, want %q", r.Version, UnknownVersion)
	}
	if len(r.Capabilities) != 0 {
		t.Errorf("Capabilities = %v, want none", r.Capabilities)
	}
	if r.Warning == nil {
		t.Fatal("Warning = nil")
	}

	// no retry, a single warning for the identity
	c.Probe(context.Background(), id)
	c.Probe(context.Background(), id)
	if n := runner.calls.Load(); n != 1 {
		t.Errorf("runner called %d times, want 1", n)
	}
	if w := c.Degraded(); len(w) != 1 {
		t.Errorf("Degraded() has %d warnings, want 1", len(w))
	}
}

func TestProbeCancelledCallerDoesNotDegrade(t *testing.T) {
	runner := &fakeRunner{delay: 10 * time.Millisecond, out: "Swift version 5.9.2"}
	c := New(runner, time.Second, discard)
	id := Identity{Compiler: "/usr/bin/swiftc"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	first := c.Probe(ctx, id)
	second := c.Probe(context.Background(), id)
	for _, r := range []*Result{first, second} {
		if r.Degraded() || r.Version != "5.9.2" || !r.Has(CxxInteropMode) {
			t.Errorf("result = %+v, want 5.9.2 with capabilities", r)
		}
	}
	if n := runner.calls.Load(); n != 1 {
		t.Errorf("runner called %d times, want 1", n)
	}
	if w := c.Degraded(); len(w) != 0 {
		t.Errorf("Degraded() = %v, want none", w)
	}
}

func TestProbeUnrecognizedOutput(t *testing.T) {
	c := New(&fakeRunner{out: "not a compiler\n"}, time.Second, discard)
	r := c.Probe(context.Background(), Identity{Compiler: "/bin/true"})
	if r.Status != StatusFailed || r.Version != UnknownVersion {
		t.Errorf("result = %+v, want failed/unknown", r)
	}
}

func TestProbeTimeout(t *testing.T) {
	runner := &fakeRunner{delay: time.Hour, out: "Swift version 5.9"}
	c := New(runner, 50*time.Millisecond, discard)

	start := time.Now()
	r := c.Probe(context.Background(), Identity{Compiler: "swiftc"})
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("probe took %v", elapsed)
	}
	if r.Status != StatusTimeout {
		t.Fatalf("Status = %v, want timeout", r.Status)
	}
	var degraded *DegradedError
	if !errors.As(r.Warning, &degraded) || degraded.Status != StatusTimeout {
		t.Errorf("Warning = %v", r.Warning)
	}
	if !errors.Is(r.Warning, context.DeadlineExceeded) {
		t.Errorf("Warning should wrap context.DeadlineExceeded: %v", r.Warning)
	}
}

func TestSeed(t *testing.T) {
	runner := &fakeRunner{out: "Swift version 5.0"}
	c := New(runner, time.Second, discard)
	id := Identity{Compiler: "/usr/bin/swiftc"}
	seeded := NewResult("6.0", time.Now())
	if !c.Seed(id, seeded) {
		t.Fatal("Seed() = false on empty cache")
	}
	if c.Seed(id, NewResult("5.0", time.Now())) {
		t.Fatal("Seed() replaced an entry")
	}
	if r := c.Probe(context.Background(), id); r != seeded {
		t.Errorf("Probe() = %+v, want seeded result", r)
	}
	if n := runner.calls.Load(); n != 0 {
		t.Errorf("runner called %d times for a seeded identity", n)
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(t.TempDir(), "swiftc")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExecRunner(t *testing.T) {
	path := writeScript(t, "echo 'Swift version 5.9.2 (swift-5.9.2-RELEASE)'\necho \"$@\" >&2\n")
	c := New(ExecRunner{}, 5*time.Second, discard)
	r := c.Probe(context.Background(), Identity{Compiler: path})
	if r.Status != StatusOK || r.Version != "5.9.2" {
		t.Fatalf("result = %+v", r)
	}
}

func TestExecRunnerNonZeroExit(t *testing.T) {
	path := writeScript(t, "echo boom >&2\nexit 3\n")
	_, err := ExecRunner{}.Run(context.Background(), path, "--version")
	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("error = %v, want *ExecError", err)
	}
	if execErr.Stderr != "boom" {
		t.Errorf("Stderr = %q, want boom", execErr.Stderr)
	}
}

func TestExecRunnerHangingCompiler(t *testing.T) {
	path := writeScript(t, "sleep 30\n")
	c := New(ExecRunner{WaitDelay: 500 * time.Millisecond}, 200*time.Millisecond, discard)

	start := time.Now()
	r := c.Probe(context.Background(), Identity{Compiler: path})
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("probe of hanging compiler took %v", elapsed)
	}
	if r.Status != StatusTimeout {
		t.Fatalf("Status = %v, want timeout (warning %v)", r.Status, r.Warning)
	}
	if len(r.Capabilities) != 0 || r.Version != UnknownVersion {
		t.Errorf("result = %+v, want empty capabilities", r)
	}
	if len(c.Degraded()) != 1 {
		t.Errorf("Degraded() = %v", c.Degraded())
	}
}
