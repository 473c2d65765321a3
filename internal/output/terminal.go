package output

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// UseColors decides whether output to w should be colored. NO_COLOR always
// wins, then FORCE_COLOR, then w must be a terminal that is not "dumb".
func UseColors(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}
	if !IsTerminal(w) {
		return false
	}
	return os.Getenv("TERM") != "dumb"
}
