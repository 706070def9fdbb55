package ui

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
)

// ProgressReporter receives stage updates while a batch is processed.
type ProgressReporter interface {
	Update(message string)
	Stop()
}

// SpinnerProgress implements ProgressReporter using briandowns/spinner. It
// writes to stderr so JSON on stdout stays clean.
type SpinnerProgress struct {
	spinner *spinner.Spinner
	out     io.Writer
}

func NewSpinnerProgress() *SpinnerProgress {
	return newSpinnerProgress(os.Stderr)
}

func newSpinnerProgress(out io.Writer) *SpinnerProgress {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(out))
	s.Prefix = "  "
	s.Color("cyan", "bold")

	return &SpinnerProgress{spinner: s, out: out}
}

// Start starts the spinner with an initial message
func (sp *SpinnerProgress) Start(message string) {
	sp.spinner.Suffix = "  " + message
	sp.spinner.Start()
}

func (sp *SpinnerProgress) Update(message string) {
	sp.spinner.Lock()
	sp.spinner.Suffix = "  " + message
	sp.spinner.Unlock()
}

func (sp *SpinnerProgress) Stop() {
	if sp.spinner.Active() {
		sp.spinner.Stop()
	}
}

// Done stops the spinner and leaves a final status line.
func (sp *SpinnerProgress) Done(message string) {
	sp.Stop()
	fmt.Fprintf(sp.out, "  ✓ %s\n", message)
}
