package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage names a milestone in a crawl run.
type Stage string

// Crawl stages. Run-scoped stages carry no URL; task-scoped stages do.
const (
	StageRunStart     Stage = "RUN_START"
	StageWaveStart    Stage = "WAVE_START"
	StageRunDone      Stage = "RUN_DONE"
	StageTaskStart    Stage = "TASK_START"
	StageFetchDone    Stage = "FETCH_DONE"
	StageExtractDone  Stage = "EXTRACT_DONE"
	StageRefineDone   Stage = "REFINE_DONE"
	StageTaskDone     Stage = "TASK_DONE"
	StageTaskRequeued Stage = "TASK_REQUEUED"
	StageTaskFailed   Stage = "TASK_FAILED"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Status classes recorded on fetch completions.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event is one progress observation.
type Event struct {
	RunID   uuid.UUID
	TS      time.Time
	Stage   Stage
	Site    string
	URL     string
	Attempt int
	// Wave is set on WAVE_START and RUN_DONE.
	Wave        int
	Bytes       int64
	StatusClass StatusClass
	Dur         time.Duration
	// Note carries low-volume context such as error text or a refine code.
	Note string
}

func (s Stage) taskScoped() bool {
	switch s {
	case StageTaskStart, StageFetchDone, StageExtractDone, StageRefineDone,
		StageTaskDone, StageTaskRequeued, StageTaskFailed:
		return true
	}
	return false
}

// Validate rejects events the sinks cannot interpret.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StageWaveStart:
		if e.Wave < 1 {
			return errors.New("wave start requires wave >= 1")
		}
	default:
		if !e.Stage.taskScoped() {
			return fmt.Errorf("unknown stage %q", e.Stage)
		}
		if e.Attempt < 1 {
			return fmt.Errorf("%s requires attempt >= 1", e.Stage)
		}
		if e.Stage == StageFetchDone && e.StatusClass == "" {
			return errors.New("fetch done requires status class")
		}
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// ClassifyStatus groups HTTP status codes for fetch events.
func ClassifyStatus(code int) StatusClass {
	switch code / 100 {
	case 2:
		return Status2xx
	case 3:
		return Status3xx
	case 4:
		return Status4xx
	case 5:
		return Status5xx
	default:
		return StatusOther
	}
}
