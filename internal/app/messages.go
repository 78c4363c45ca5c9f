package app

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"comicsqueeze/internal/orchestrator"
)

// FileProgressMsg updates one comic's row in the conversion table.
type FileProgressMsg struct {
	Path    string
	Name    string
	Stage   orchestrator.Stage
	Percent float64
	ErrMsg  string
}

// BatchFinishedMsg signals that the pipeline has drained and the program
// can shut down.
type BatchFinishedMsg struct {
	StartTime time.Time
	EndTime   time.Time
	Converted int
	Skipped   int
	Failed    int
}

func newFileProgress(e orchestrator.Event) FileProgressMsg {
	msg := FileProgressMsg{
		Path:    e.Path,
		Name:    e.Name,
		Stage:   e.Stage,
		Percent: float64(e.Position) / 100,
	}
	if e.Err != nil {
		msg.ErrMsg = e.Err.Error()
	}
	return msg
}

func (m FileProgressMsg) String() string {
	return fmt.Sprintf("FileProgress %s: %s", m.Name, m.Stage)
}

func (m BatchFinishedMsg) String() string {
	return fmt.Sprintf("BatchFinished: %d converted, %d skipped, %d failed", m.Converted, m.Skipped, m.Failed)
}

// Translate pumps pipeline events into bubbletea messages, then sends a
// BatchFinishedMsg and closes uiMsgChan once the event channel drains.
// Run it in its own goroutine alongside the batch.
func Translate(events <-chan orchestrator.Event, uiMsgChan chan<- tea.Msg) {
	start := time.Now()
	var converted, skipped, failed int
	for e := range events {
		switch e.Stage {
		case orchestrator.StageComplete:
			converted++
		case orchestrator.StageSkipped:
			skipped++
		case orchestrator.StageFailed:
			failed++
		}
		uiMsgChan <- newFileProgress(e)
	}
	uiMsgChan <- BatchFinishedMsg{
		StartTime: start,
		EndTime:   time.Now(),
		Converted: converted,
		Skipped:   skipped,
		Failed:    failed,
	}
	close(uiMsgChan)
}
