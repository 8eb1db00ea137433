//go:build !windows

package tui

import (
	"os"
	"os/exec"
)

// restoreTerminal puts the controlling terminal back into cooked mode after
// the picker died without tearing down raw mode.
func restoreTerminal() {
	fi, err := os.Stdin.Stat()
	if err != nil || fi.Mode()&os.ModeCharDevice == 0 {
		return
	}
	_ = exec.Command("sh", "-c", "stty sane < /dev/tty > /dev/null 2>&1").Run()
}
