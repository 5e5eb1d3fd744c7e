// Package spinner draws a one-line activity indicator while the batch has
// not produced its first result yet.
package spinner

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"
)

var frames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// interval between frames
const interval = 80 * time.Millisecond

// Start displays an animated spinner with the given message and the time
// spent waiting so far. Call the returned function to stop the spinner and
// clear the line. Stop is safe to call more than once and from any goroutine.
func Start(w io.Writer, message string) (stop func()) {
	done := make(chan struct{})
	cleared := make(chan struct{})
	var stopOnce sync.Once

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		started := time.Now()
		width := 0
		for i := 0; ; i++ {
			select {
			case <-done:
				fmt.Fprintf(w, "\r%s\r", strings.Repeat(" ", width)) //nolint:errcheck
				close(cleared)
				return
			case <-ticker.C:
				line := fmt.Sprintf("%s %s (%ds)", frames[i%len(frames)], message, int(time.Since(started).Seconds()))
				width = max(width, runewidth.StringWidth(line))
				fmt.Fprintf(w, "\r%s", runewidth.FillRight(line, width)) //nolint:errcheck
			}
		}
	}()

	return func() {
		stopOnce.Do(func() {
			close(done)
		})
		<-cleared
	}
}
