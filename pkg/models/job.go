package models

import (
	"encoding/json"
	"time"
)

// JobStatus is the queue state of a job row.
type JobStatus string

// Job statuses. Allowed moves: queued -> running -> {done, failed, queued}.
const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// JobType identifies the pipeline step a job dispatches to.
type JobType string

// Pipeline job types.
const (
	JobProcessPDFCase             JobType = "process_pdf_case"
	JobRunLLM1                    JobType = "run_llm1"
	JobRunLLM2                    JobType = "run_llm2"
	JobPostRoom2Widget            JobType = "post_room2_widget"
	JobPostRoom3Request           JobType = "post_room3_request"
	JobPostRoom1FinalAppt         JobType = "post_room1_final_appt"
	JobPostRoom1FinalApptDenied   JobType = "post_room1_final_appt_denied"
	JobPostRoom1FinalDenialTriage JobType = "post_room1_final_denial_triage"
	JobPostRoom1FinalFailure      JobType = "post_room1_final_failure"
	JobCleanupCase                JobType = "cleanup_case"
)

// Job is a durable queue entry. Delivery is at-least-once: a process restart
// requeues every `running` row before workers start.
type Job struct {
	ID        int64
	CaseID    *string
	Type      JobType
	Payload   json.RawMessage
	Status    JobStatus
	Attempts  int
	RunAfter  time.Time
	LastError *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FailurePayload is the payload of a post_room1_final_failure job.
type FailurePayload struct {
	Cause   string `json:"cause"`
	Details string `json:"details"`
}
