// Package batch runs long operations in the background and reports their progress
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/awaistahir/smart-tariff/internal/engine"
	"github.com/awaistahir/smart-tariff/internal/log"
	"github.com/google/uuid"
)

// Status is a point-in-time snapshot of a job
type Status struct {
	ID           string     `json:"id"`
	Label        string     `json:"label"`
	Total        int        `json:"total"`
	Current      int        `json:"current"`
	CurrentLabel string     `json:"current_label"`
	Done         bool       `json:"done"`
	Error        string     `json:"error,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// Job is a running or finished background operation
type Job struct {
	mu     sync.Mutex
	status Status
	subs   map[chan Status]struct{}
	done   chan struct{}
}

var _ engine.Progress = (*Job)(nil)

// Report records progress and notifies subscribers
func (j *Job) Report(total, current int, label string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status.Total = total
	j.status.Current = current
	j.status.CurrentLabel = label
	j.publish()
}

// Status returns the latest snapshot
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Done is closed when the job has finished
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Subscribe returns a channel that receives the current snapshot followed by every update.
// Slow readers only see the latest snapshot. The channel is closed once the final
// snapshot has been delivered; call cancel to stop listening earlier.
func (j *Job) Subscribe() (<-chan Status, func()) {
	ch := make(chan Status, 8)

	j.mu.Lock()
	defer j.mu.Unlock()
	ch <- j.status
	if j.status.Done {
		close(ch)
		return ch, func() {}
	}
	j.subs[ch] = struct{}{}

	return ch, func() {
		j.mu.Lock()
		defer j.mu.Unlock()
		if _, ok := j.subs[ch]; ok {
			delete(j.subs, ch)
			close(ch)
		}
	}
}

// publish must be called with j.mu held
func (j *Job) publish() {
	for ch := range j.subs {
		select {
		case ch <- j.status:
		default:
			// replace the oldest pending snapshot
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- j.status:
			default:
			}
		}
	}
}

func (j *Job) finish(err error, now time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status.Done = true
	j.status.FinishedAt = &now
	if err != nil {
		j.status.Error = err.Error()
	}
	j.publish()
	for ch := range j.subs {
		delete(j.subs, ch)
		close(ch)
	}
	close(j.done)
}

// Retention is how long a finished job stays addressable by id
const Retention = time.Hour

// Manager starts jobs and keeps them addressable by id until Retention after they finish
type Manager struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	wg   sync.WaitGroup
	now  func() time.Time
}

func NewManager() *Manager {
	return &Manager{jobs: make(map[string]*Job), now: time.Now}
}

// Start runs fn in its own goroutine. fn reports progress through the job it is given.
func (m *Manager) Start(ctx context.Context, label string, fn func(ctx context.Context, job *Job) error) *Job {
	job := &Job{
		status: Status{
			ID:        uuid.NewString(),
			Label:     label,
			StartedAt: m.now(),
		},
		subs: make(map[chan Status]struct{}),
		done: make(chan struct{}),
	}

	m.mu.Lock()
	m.prune()
	m.jobs[job.status.ID] = job
	m.mu.Unlock()

	ctx = log.With(ctx, log.Ctx(ctx).With(slog.String("job", job.status.ID)))
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		err := run(ctx, job, fn)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "job failed", slog.String("label", label), slog.Any("error", err))
		} else {
			log.Ctx(ctx).InfoContext(ctx, "job finished", slog.String("label", label))
		}
		job.finish(err, m.now())
	}()
	return job
}

func run(ctx context.Context, job *Job, fn func(ctx context.Context, job *Job) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return fn(ctx, job)
}

// Get returns the job with the given id
func (m *Manager) Get(id string) (*Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prune()
	job, ok := m.jobs[id]
	return job, ok
}

// prune forgets jobs that finished more than Retention ago. m.mu must be held.
func (m *Manager) prune() {
	cutoff := m.now().Add(-Retention)
	for id, job := range m.jobs {
		st := job.Status()
		if st.Done && st.FinishedAt.Before(cutoff) {
			delete(m.jobs, id)
		}
	}
}

// Running reports whether any job has not yet finished
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, job := range m.jobs {
		select {
		case <-job.done:
		default:
			return true
		}
	}
	return false
}

// Wait blocks until every started job has finished
func (m *Manager) Wait() {
	m.wg.Wait()
}
