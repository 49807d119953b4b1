package cmd

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// interactive reports whether the command can prompt: stdin is a TTY and
// the picker has a terminal to draw on.
func interactive(in io.Reader, out io.Writer) bool {
	f, ok := in.(*os.File)
	if !ok || !isatty.IsTerminal(f.Fd()) {
		return false
	}
	o, ok := out.(*os.File)
	return ok && isatty.IsTerminal(o.Fd())
}
