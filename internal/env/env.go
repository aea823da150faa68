// Package env discovers the toolchain from the process environment.
package env

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/goplus/swbuild/internal/probe"
)

// SDKTimeout bounds the xcrun query for the SDK path.
const SDKTimeout = probe.DefaultTimeout

// ErrNoCompiler is returned when no Swift compiler can be found.
var ErrNoCompiler = errors.New("no swift compiler found: set SWIFTC or add swiftc to PATH")

// Compiler returns the absolute path of the Swift compiler: $SWIFTC when
// set, otherwise swiftc found on PATH.
func Compiler() (string, error) {
	name := os.Getenv("SWIFTC")
	if name == "" {
		name = "swiftc"
	}
	return Resolve("", name)
}

// Resolve returns the absolute path of the compiler name. A name containing
// a path separator is taken relative to dir, or to the working directory
// when dir is empty, and need not exist yet. Other names are looked up on
// PATH.
func Resolve(dir, name string) (string, error) {
	if strings.ContainsRune(name, '/') || strings.ContainsRune(name, filepath.Separator) {
		if dir != "" && !filepath.IsAbs(name) {
			name = filepath.Join(dir, name)
		}
		return filepath.Abs(name)
	}
	path, err := exec.LookPath(name)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", ErrNoCompiler
		}
		return "", fmt.Errorf("locating %s: %w", name, err)
	}
	return filepath.Abs(path)
}

// SDKPath returns the platform SDK: $SDKROOT when set, otherwise on darwin
// the SDK reported by xcrun. Other platforms need no SDK and get "".
func SDKPath(ctx context.Context, platform string, runner probe.Runner) (string, error) {
	if sdk := os.Getenv("SDKROOT"); sdk != "" {
		return sdk, nil
	}
	if platform != "darwin" {
		return "", nil
	}
	if runner == nil {
		runner = probe.ExecRunner{}
	}
	ctx, cancel := context.WithTimeout(ctx, SDKTimeout)
	defer cancel()
	out, err := runner.Run(ctx, "xcrun", "--show-sdk-path")
	if err != nil {
		return "", fmt.Errorf("locating the macOS SDK: %w", err)
	}
	sdk := strings.TrimSpace(string(out))
	if sdk == "" {
		return "", errors.New("locating the macOS SDK: xcrun printed nothing")
	}
	return sdk, nil
}
