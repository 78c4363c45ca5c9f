package report

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"

	"comicsqueeze/internal/orchestrator"
)

// RenderPlain drains pipeline events onto a single progress bar counting
// finished files, for terminals where the full-screen UI is unwanted.
// It returns once the event channel closes.
func RenderPlain(w io.Writer, total int, events <-chan orchestrator.Event) {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("converting"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "#",
			SaucerPadding: "-",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
	)

	for e := range events {
		switch e.Stage {
		case orchestrator.StageExtracting:
			bar.Describe("converting " + e.Name)
		case orchestrator.StageFailed:
			bar.Clear()
			fmt.Fprintf(w, "failed %s: %v\n", e.Name, e.Err)
		}
		if e.Stage.Terminal() {
			bar.Add(1)
		}
	}
	bar.Finish()
}
