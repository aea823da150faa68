//go:build !unix

package probe

import "os/exec"

// killProcessGroup keeps exec's default cancellation, which kills the
// process itself.
func killProcessGroup(cmd *exec.Cmd) {}
