// Package console writes the operator-facing output of a run.
package console

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/distantorigin/field-updater/internal/oplog"
)

var (
	out   io.Writer = os.Stdout
	in    io.Reader = os.Stdin
	quiet bool
)

// Init configures the console package
func Init(quietMode bool) {
	quiet = quietMode
}

// SetIO redirects console output and input (useful for testing)
func SetIO(w io.Writer, r io.Reader) {
	out = w
	in = r
}

// IsInteractive reports whether stdin is a terminal someone could answer from
func IsInteractive() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// PrintSummary renders the operation summary. The summary is printed even
// in quiet mode since it is the only record an operator sees.
func PrintSummary(s oplog.Summary) error {
	return s.Render(out)
}

// WaitForKey prompts the user to press Enter. Does nothing in non-interactive mode.
func WaitForKey(prompt string, nonInteractive bool) {
	if nonInteractive {
		return
	}
	fmt.Fprint(out, prompt)
	_, _ = bufio.NewReader(in).ReadBytes('\n')
}

// Log prints a message if not in quiet mode
func Log(format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(out, format+"\n", args...)
	}
}
