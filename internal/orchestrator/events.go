package orchestrator

// Stage identifies where in its pipeline a file currently is.
type Stage int

const (
	StageQueued Stage = iota
	StageExtracting
	StageTranscoding
	StageRepackaging
	StageComplete
	StageSkipped
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageQueued:
		return "queued"
	case StageExtracting:
		return "extracting"
	case StageTranscoding:
		return "transcoding"
	case StageRepackaging:
		return "repackaging"
	case StageComplete:
		return "complete"
	case StageSkipped:
		return "skipped"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further events follow for the file.
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageSkipped || s == StageFailed
}

// Event is one progress update for one input file. Position runs 0-100
// within that file's pipeline and never decreases. Stats is set only on
// StageComplete; Err only on StageFailed.
type Event struct {
	Path     string
	Name     string
	Stage    Stage
	Position int
	Err      error
	Stats    *ProcessingStats
}
