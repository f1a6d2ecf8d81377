package main

import (
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/marcpage/libernet/msgcenter"
)

// progressReporter renders backup/restore progress on stderr, replacing
// libernet/backup.py's __progress hand-rolled \r-overwrite loop with a
// terminal progress bar.
type progressReporter struct {
	ch   chan interface{}
	done chan struct{}
}

// newProgressReporter subscribes to center and renders a spinner advancing
// once per "source" message, until center shuts down.
func newProgressReporter(center *msgcenter.Center) *progressReporter {
	ch := center.NewChannel()
	r := &progressReporter{ch: ch, done: make(chan struct{})}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("backup"),
		progressbar.OptionClearOnFinish(),
	)

	go func() {
		defer close(r.done)

		for message := range ch {
			if message == nil {
				center.CloseChannel(ch)
				return
			}

			if pair, ok := message.([2]string); ok && pair[0] == "source" {
				bar.Describe(pair[1])
				bar.Add(1)
			}
		}
	}()

	return r
}

// wait blocks until the reporter has observed the center's shutdown.
func (r *progressReporter) wait() {
	<-r.done
}
