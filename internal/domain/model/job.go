package model

import (
	"crypto/rand"
	"math/big"
	"time"

	"github.com/oklog/ulid/v2"
)

type JobType string

const (
	JobTypeImage     JobType = "image"
	JobTypeVideo     JobType = "video"
	JobTypeText      JobType = "text"
	JobTypeEmbedding JobType = "embedding"
)

// AllJobTypes lists every registered type, in the order pools are started.
func AllJobTypes() []JobType {
	return []JobType{JobTypeImage, JobTypeVideo, JobTypeText, JobTypeEmbedding}
}

func ParseJobType(s string) (JobType, bool) {
	switch JobType(s) {
	case JobTypeImage, JobTypeVideo, JobTypeText, JobTypeEmbedding:
		return JobType(s), true
	}
	return "", false
}

type JobState string

const (
	JobStatePending   JobState = "pending"
	JobStateActive    JobState = "active"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
)

type SubTaskStatus string

const (
	SubTaskPending    SubTaskStatus = "pending"
	SubTaskProcessing SubTaskStatus = "processing"
	SubTaskCompleted  SubTaskStatus = "completed"
	SubTaskFailed     SubTaskStatus = "failed"
)

type SubTask struct {
	Status  SubTaskStatus `json:"status"`
	Message string        `json:"message,omitempty"`
}

// Progress is mutated only by the worker holding the job's lease.
// Current never decreases and stays <= Total until the job is terminal.
type Progress struct {
	Current  int                `json:"current"`
	Total    int                `json:"total"`
	Message  string             `json:"message,omitempty"`
	SubTasks map[string]SubTask `json:"subTasks,omitempty"`
}

// Advance bumps Current by one, clamped to Total.
func (p *Progress) Advance(message string) {
	if p.Current < p.Total {
		p.Current++
	}
	p.Message = message
}

func (p *Progress) SetSubTask(op string, status SubTaskStatus, message string) {
	if p.SubTasks == nil {
		p.SubTasks = make(map[string]SubTask)
	}
	p.SubTasks[op] = SubTask{Status: status, Message: message}
}

// Backoff parameterizes the retry delay: base * 2^attempts plus a uniform
// jitter in [0, jitterMax), capped at Max when Max > 0.
type Backoff struct {
	Base      time.Duration `json:"base"`
	JitterMax time.Duration `json:"jitterMax"`
	Max       time.Duration `json:"max"`
}

// Delay computes the wait before the next run after `attempts` failures.
func (b Backoff) Delay(attempts int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = time.Second
	}
	d := base
	for i := 0; i < attempts; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			d = b.Max
			break
		}
	}
	if b.JitterMax > 0 {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(b.JitterMax)))
		if err == nil {
			d += time.Duration(n.Int64())
		}
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}

type EnqueueOptions struct {
	MaxAttempts int
	Priority    int
	Backoff     Backoff
}

// Job is one unit of queued work. The payload is immutable once enqueued;
// everything else is mutated either by the queue store (state transitions)
// or by the single worker holding a valid lease.
type Job struct {
	ID              string
	Type            JobType
	Payload         Payload
	State           JobState
	Attempts        int
	MaxAttempts     int
	Priority        int
	Backoff         Backoff
	NextRunAt       time.Time
	LeaseExpiresAt  time.Time
	WorkerID        string
	CancelRequested bool
	CreatedAt       time.Time
	ProcessedAt     time.Time
	FinishedAt      time.Time
	Result          any
	FailureReason   string
	Progress        Progress
}

// Warnings lists the sub-operations that failed while the job still
// completed (best-effort policy). Empty under fail-fast.
func (j *Job) Warnings() []string {
	var out []string
	for op, st := range j.Progress.SubTasks {
		if st.Status == SubTaskFailed {
			if st.Message != "" {
				out = append(out, op+": "+st.Message)
			} else {
				out = append(out, op)
			}
		}
	}
	return out
}

// NewJob builds a pending job with a fresh ULID. ULIDs sort by creation time,
// which gives the queue its FIFO tiebreak for free.
func NewJob(t JobType, payload Payload, opts EnqueueOptions) *Job {
	now := time.Now()
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Job{
		ID:          ulid.Make().String(),
		Type:        t,
		Payload:     payload,
		State:       JobStatePending,
		MaxAttempts: maxAttempts,
		Priority:    opts.Priority,
		Backoff:     opts.Backoff,
		NextRunAt:   now,
		CreatedAt:   now,
	}
}

// Terminal reports whether the job reached a final state.
func (j *Job) Terminal() bool {
	return j.State == JobStateCompleted || j.State == JobStateFailed
}
