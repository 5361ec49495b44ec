package pipeline

import (
	"sync"
	"time"

	"github.com/palikit/canonpress/internal/matter"
)

// JobStatus represents the state of an assembly job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusFetching   JobStatus = "fetching"
	StatusAssembling JobStatus = "assembling"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusPartial    JobStatus = "partial"
)

// Job tracks the state of one publication assembly run.
type Job struct {
	mu sync.Mutex

	ID        string `json:"job_id"`
	EditionID string `json:"edition_id"`

	Status JobStatus `json:"status"`
	Phase  string    `json:"phase"`

	Progress Progress `json:"progress"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Internal: not serialized. Composed volumes are held until the job
	// expires so callers can retrieve them; nothing is persisted to disk.
	volumes []*matter.Volume
	errors  []string
}

// NewJob creates a queued job for an edition.
func NewJob(editionID string) *Job {
	now := time.Now()
	return &Job{
		ID:        NewJobID(),
		EditionID: editionID,
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Progress tracks per-volume progress.
type Progress struct {
	TotalVolumes     int      `json:"total_volumes"`
	VolumesAssembled int      `json:"volumes_assembled"`
	VolumesFailed    int      `json:"volumes_failed"`
	Errors           []string `json:"errors"`
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		if now.Sub(job.UpdatedAt) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records a per-volume or job-level error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// SetTotalVolumes records how many volumes the edition has.
func (j *Job) SetTotalVolumes(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.TotalVolumes = n
	j.UpdatedAt = time.Now()
}

// AddVolume stores one composed volume and counts it as assembled.
func (j *Job) AddVolume(v *matter.Volume) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.volumes = append(j.volumes, v)
	j.Progress.VolumesAssembled++
	j.UpdatedAt = time.Now()
}

// MarkVolumeFailed counts one failed volume.
func (j *Job) MarkVolumeFailed() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.VolumesFailed++
	j.UpdatedAt = time.Now()
}

// Volume returns the composed volume with the given number, or nil.
func (j *Job) Volume(number int) *matter.Volume {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, v := range j.volumes {
		if v.Number == number {
			return v
		}
	}
	return nil
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID        string    `json:"job_id"`
	EditionID string    `json:"edition_id"`
	Status    JobStatus `json:"status"`
	Phase     string    `json:"phase"`
	Progress  Progress  `json:"progress"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := j.Progress.Errors
	if errs == nil {
		errs = []string{}
	}
	return JobSnapshot{
		ID:        j.ID,
		EditionID: j.EditionID,
		Status:    j.Status,
		Phase:     j.Phase,
		Progress: Progress{
			TotalVolumes:     j.Progress.TotalVolumes,
			VolumesAssembled: j.Progress.VolumesAssembled,
			VolumesFailed:    j.Progress.VolumesFailed,
			Errors:           errs,
		},
	}
}
