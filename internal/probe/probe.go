// Package probe queries a Swift compiler for its version and derives the
// optional features it supports.
//
// Probing runs the compiler out of process, so results are cached per
// compiler identity for the lifetime of a Cache (one build). Concurrent
// callers for the same identity share a single probe; different identities
// probe in parallel. A probe that fails or times out never fails the build:
// it yields a degraded Result with no capabilities.
package probe

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/mod/semver"
)

// UnknownVersion is the version of a compiler whose probe failed.
const UnknownVersion = "unknown"

// Capability names an optional compiler feature.
type Capability string

const (
	ConcurrencySyntax Capability = "supports-concurrency-syntax"
	RegexLiterals     Capability = "supports-regex-literals"
	UpcomingFeatures  Capability = "supports-upcoming-features"
	CxxInteropMode    Capability = "supports-cxx-interop-mode"
	ClangHeaderPath   Capability = "supports-clang-header-path"
)

// minVersions maps each capability to the first compiler version having it.
var minVersions = []struct {
	capability Capability
	min        string
}{
	{ConcurrencySyntax, "v5.7"},
	{RegexLiterals, "v5.7"},
	{UpcomingFeatures, "v5.8"},
	{CxxInteropMode, "v5.9"},
	{ClangHeaderPath, "v5.9"},
}

// Identity identifies a compiler for caching purposes: its resolved path
// plus the invocation flags that change what it reports (e.g. -target).
type Identity struct {
	Compiler string
	Flags    []string
}

// Key returns a string uniquely identifying id.
func (id Identity) Key() string {
	return strings.Join(append([]string{id.Compiler}, id.Flags...), "\x00")
}

func (id Identity) String() string {
	return strings.Join(append([]string{id.Compiler}, id.Flags...), " ")
}

// Status is the outcome of a probe.
type Status int

const (
	StatusOK Status = iota
	StatusFailed
	StatusTimeout
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusFailed:
		return "failed"
	case StatusTimeout:
		return "timeout"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Result is what a probe measured. Results are shared between callers and
// must not be modified.
type Result struct {
	Version      string
	Capabilities map[Capability]bool
	MeasuredAt   time.Time
	Status       Status

	// Warning is set when the probe degraded.
	Warning *DegradedError
}

// Has reports whether the compiler supports c.
func (r *Result) Has(c Capability) bool {
	return r != nil && r.Capabilities[c]
}

// Degraded reports whether the probe failed.
func (r *Result) Degraded() bool {
	return r == nil || r.Status != StatusOK
}

// NewResult returns a successful Result for a compiler of the given
// version, e.g. "5.9.2", with the capabilities that version implies.
func NewResult(version string, measuredAt time.Time) *Result {
	return &Result{
		Version:      version,
		Capabilities: capabilitiesOf(version),
		MeasuredAt:   measuredAt,
		Status:       StatusOK,
	}
}

var versionRE = regexp.MustCompile(`Swift version (\d+(?:\.\d+){0,2})`)

// ParseVersion extracts the language version from `swiftc --version`
// output. Both "Swift version 5.9.2 (swift-5.9.2-RELEASE)" and Apple's
// "swift-driver version: 1.87.3 Apple Swift version 5.9.2 (...)" are
// recognized.
func ParseVersion(out []byte) (string, bool) {
	m := versionRE.FindSubmatch(out)
	if m == nil {
		return "", false
	}
	return string(m[1]), true
}

// Capabilities returns every known capability, in the order compilers
// gained them.
func Capabilities() []Capability {
	caps := make([]Capability, len(minVersions))
	for i, mv := range minVersions {
		caps[i] = mv.capability
	}
	return caps
}

func capabilitiesOf(version string) map[Capability]bool {
	caps := make(map[Capability]bool)
	v := "v" + version
	if !semver.IsValid(v) {
		return caps
	}
	for _, mv := range minVersions {
		if semver.Compare(v, mv.min) >= 0 {
			caps[mv.capability] = true
		}
	}
	return caps
}

// DegradedError describes a failed probe. It is a warning: the build goes
// on without the capabilities the probe would have detected.
type DegradedError struct {
	Identity Identity
	Status   Status
	Err      error
}

func (e *DegradedError) Error() string {
	return fmt.Sprintf("probing %s: %s: %v (capability-gated flags omitted)", e.Identity, e.Status, e.Err)
}

func (e *DegradedError) Unwrap() error { return e.Err }
