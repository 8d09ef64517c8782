package models

import (
	"time"
)

// JobStatus represents the lifecycle state of a pipeline job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// Active reports whether a job in this status counts against the
// one-active-job-per-plan invariant.
func (s JobStatus) Active() bool {
	return s == JobPending || s == JobRunning
}

// StageStatus represents the lifecycle state of one stage run.
type StageStatus string

const (
	StagePending    StageStatus = "pending"
	StageProcessing StageStatus = "processing"
	StageCompleted  StageStatus = "completed"
	StageFailed     StageStatus = "failed"
	StageSkipped    StageStatus = "skipped"
)

// Terminal reports whether the stage status is final.
func (s StageStatus) Terminal() bool {
	switch s {
	case StageCompleted, StageFailed, StageSkipped:
		return true
	}
	return false
}

// StageRun is the per-invocation execution record of one stage within a job.
type StageRun struct {
	Stage      int         `json:"stage" validate:"gte=1"`
	Status     StageStatus `json:"status" validate:"required,oneof=pending processing completed failed skipped"`
	Progress   int         `json:"progress" validate:"gte=0,lte=100"`
	Message    string      `json:"message,omitempty"`
	Error      string      `json:"error,omitempty"`
	Usage      Usage       `json:"usage"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	DurationMS int64       `json:"duration_ms"`
}

// Job is one end-to-end pipeline invocation for a plan. At most one job per
// plan may be pending or running at any time.
type Job struct {
	ID           string            `json:"id" validate:"required,uuid4"`
	PlanID       string            `json:"plan_id" validate:"required,uuid4"`
	Status       JobStatus         `json:"status" validate:"required,oneof=pending running completed failed cancelled"`
	Progress     int               `json:"progress" validate:"gte=0,lte=100"`
	CurrentStage int               `json:"current_stage" validate:"gte=0"`
	StageRuns    map[int]*StageRun `json:"stage_runs" validate:"dive"`
	Error        string            `json:"error,omitempty"`
	CreatedAt    time.Time         `json:"created_at" validate:"required"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	FinishedAt   *time.Time        `json:"finished_at,omitempty"`
}

// Clone returns a deep copy safe to hand to concurrent readers while the
// pipeline goroutine keeps mutating the original.
func (j *Job) Clone() *Job {
	cp := *j
	cp.StageRuns = make(map[int]*StageRun, len(j.StageRuns))
	for k, v := range j.StageRuns {
		run := *v
		cp.StageRuns[k] = &run
	}
	return &cp
}
