// Package progress draws advisory progress bars for batch stages.
package progress

import (
	"io"

	"github.com/schollz/progressbar/v3"
)

// Bar is the subset of a progress bar the stages use
type Bar interface {
	Add(n int) error
	Finish() error
}

// Factory creates bars. The zero value draws nothing.
type Factory struct {
	out io.Writer
}

// NewFactory returns a factory drawing to out; a nil out disables bars
func NewFactory(out io.Writer) Factory {
	return Factory{out: out}
}

// New starts a bar of total steps with a description
func (f Factory) New(total int, description string) Bar {
	if f.out == nil || total <= 0 {
		return noopBar{}
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(f.out),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionOnCompletion(func() {
			_, _ = io.WriteString(f.out, "\n")
		}),
	)
}

type noopBar struct{}

func (noopBar) Add(int) error { return nil }
func (noopBar) Finish() error { return nil }
