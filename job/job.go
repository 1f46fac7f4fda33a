package job

import (
	"fmt"
	"math"
	"time"
)

// Key identifies the singleton reindex job record.
const Key = "index_job"

// Status is a reindex job state.
type Status string

const (
	Starting       Status = "STARTING"
	SavingFile     Status = "SAVING_FILE"
	FinishedInsert Status = "FINISHED_INSERT"
	FinishedSave   Status = "FINISHED_SAVE"
	ReloadingIndex Status = "RELOADING_INDEX"
	Done           Status = "DONE"
	Failed         Status = "FAILED"
)

// Percent reported on entering each state.
const (
	StartingPercent       = 0
	SavingFilePercent     = 15
	InsertDonePercent     = 65
	FinishedInsertPercent = 70
	FinishedSavePercent   = 80
	ReloadingIndexPercent = 85
	DonePercent           = 100
)

var transitions = map[Status][]Status{
	Starting:       {SavingFile},
	SavingFile:     {FinishedInsert},
	FinishedInsert: {FinishedSave},
	FinishedSave:   {ReloadingIndex},
	ReloadingIndex: {Done},
}

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	return s == Done || s == Failed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case Starting, SavingFile, FinishedInsert, FinishedSave, ReloadingIndex, Done, Failed:
		return true
	}
	return false
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to Status) bool {
	if to == Failed {
		return !from.Terminal()
	}
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Job is the observable record of an index rebuild.
type Job struct {
	ID        string    `json:"id"`
	Run       string    `json:"run,omitempty"`
	Status    Status    `json:"status"`
	Percent   int       `json:"percent"`
	Message   string    `json:"message,omitempty"`
	File      string    `json:"file,omitempty"`
	Current   int       `json:"current"`
	Total     int       `json:"total"`
	StartedAt time.Time `json:"startedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// New returns a job in the STARTING state for the named upload.
func New(run, file string, now time.Time) *Job {
	return &Job{
		ID:        Key,
		Run:       run,
		Status:    Starting,
		Percent:   StartingPercent,
		Message:   "upload received",
		File:      file,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// Active reports whether j blocks a new build.
func (j *Job) Active() bool {
	return j != nil && !j.Status.Terminal()
}

// Clone returns a copy safe to hand to callers.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	ret := *j
	return &ret
}

// Transition moves j to status, reporting percent and message.
// Percent never decreases.
func (j *Job) Transition(status Status, percent int, message string, now time.Time) error {
	if !CanTransition(j.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, status)
	}
	j.Status = status
	if percent > j.Percent {
		j.Percent = clamp(percent)
	}
	j.Message = message
	j.UpdatedAt = now
	return nil
}

// Fail moves a non-terminal job to FAILED with percent 100.
func (j *Job) Fail(message string, now time.Time) error {
	if err := j.Transition(Failed, DonePercent, message, now); err != nil {
		return err
	}
	j.Percent = DonePercent
	return nil
}

// Progress records insert-phase progress; current is the number of records processed.
func (j *Job) Progress(current, total int, now time.Time) bool {
	if j.Status != SavingFile {
		return false
	}
	percent := InsertPercent(current, total)
	changed := percent > j.Percent
	if changed {
		j.Percent = percent
	}
	if current > j.Current {
		j.Current = current
	}
	j.Total = total
	j.Message = fmt.Sprintf("indexed %d/%d sequences", j.Current, total)
	j.UpdatedAt = now
	return changed || current == total
}

// InsertPercent maps insert-phase progress onto the 15..65 range.
func InsertPercent(current, total int) int {
	if total <= 0 {
		return SavingFilePercent
	}
	if current > total {
		current = total
	}
	span := float64(InsertDonePercent - SavingFilePercent)
	return SavingFilePercent + int(math.Round(float64(current)/float64(total)*span))
}

func clamp(percent int) int {
	if percent < 0 {
		return 0
	}
	if percent > DonePercent {
		return DonePercent
	}
	return percent
}
