package schedule

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrUnknownJobType is returned for a job type with no registered executor
	ErrUnknownJobType = errors.New("unknown job type")
	// ErrJobNotFound is returned when a forced job id is not in the schedule
	ErrJobNotFound = errors.New("job not found")
)

const maxErrorLen = 500

// Output is the type-specific outcome of a job
type Output map[string]interface{}

// Executor runs one type of job
type Executor interface {
	Execute(ctx context.Context, job Job) (Output, error)
}

// ExecutorFunc adapts a function to Executor
type ExecutorFunc func(ctx context.Context, job Job) (Output, error)

// Execute calls f
func (f ExecutorFunc) Execute(ctx context.Context, job Job) (Output, error) {
	return f(ctx, job)
}

// JobResult is the outcome of one run
type JobResult struct {
	RunID   string  `json:"run_id"`
	JobID   string  `json:"job_id"`
	Type    string  `json:"type"`
	Status  string  `json:"status"`
	Elapsed float64 `json:"elapsed_seconds"`
	Error   string  `json:"error,omitempty"`
	Output  Output  `json:"output,omitempty"`
}

// JobSource supplies the current job list
type JobSource func() ([]Job, error)

// FromFile reloads the schedule file on every call
func FromFile(path string) JobSource {
	return func() ([]Job, error) {
		return Load(path)
	}
}

// Static always returns jobs
func Static(jobs []Job) JobSource {
	return func() ([]Job, error) {
		return jobs, nil
	}
}

// JobStatus is a job together with its recorded state
type JobStatus struct {
	Job   Job      `json:"job"`
	State JobState `json:"state"`
	Due   bool     `json:"due"`
}

// Runner executes due jobs and records their state
type Runner struct {
	jobs      JobSource
	state     StateStore
	executors map[string]Executor
	logger    *zap.Logger
	clock     func() time.Time

	// serializes RunDue so ticks and manual runs do not interleave state
	mu sync.Mutex
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithClock sets the time source used for due checks and last_run
func WithClock(clock func() time.Time) RunnerOption {
	return func(r *Runner) {
		r.clock = clock
	}
}

// NewRunner creates a runner with no executors registered
func NewRunner(jobs JobSource, state StateStore, logger *zap.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		jobs:      jobs,
		state:     state,
		executors: make(map[string]Executor),
		logger:    logger,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register sets the executor for a job type
func (r *Runner) Register(jobType string, e Executor) {
	r.executors[jobType] = e
}

// Types lists the registered job types
func (r *Runner) Types() []string {
	types := make([]string, 0, len(r.executors))
	for t := range r.executors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Jobs returns the current job list
func (r *Runner) Jobs() ([]Job, error) {
	return r.jobs()
}

// State returns the recorded run state
func (r *Runner) State(ctx context.Context) (State, error) {
	return r.state.Load(ctx)
}

// Status lists every job with its state and whether it is due now
func (r *Runner) Status(ctx context.Context) ([]JobStatus, error) {
	jobs, err := r.jobs()
	if err != nil {
		return nil, err
	}
	state, err := r.state.Load(ctx)
	if err != nil {
		return nil, err
	}

	now := r.clock()
	out := make([]JobStatus, 0, len(jobs))
	for _, job := range jobs {
		st := state[job.ID]
		out = append(out, JobStatus{Job: job, State: st, Due: job.IsEnabled() && Due(job, st, now)})
	}
	return out, nil
}

// Run executes a single job without consulting or recording state. Executor
// failures are reported in the result; only an unregistered type is an error.
func (r *Runner) Run(ctx context.Context, job Job) (*JobResult, error) {
	jobType := job.TypeOrDefault()
	exec, ok := r.executors[jobType]
	if !ok {
		return nil, fmt.Errorf("%w: %s (job: %s)", ErrUnknownJobType, jobType, job.ID)
	}

	res := &JobResult{
		RunID: uuid.NewString(),
		JobID: job.ID,
		Type:  jobType,
	}

	r.logger.Info("running job",
		zap.String("job_id", job.ID),
		zap.String("name", job.DisplayName()),
		zap.String("type", jobType),
		zap.String("run_id", res.RunID),
	)

	start := time.Now()
	output, err := exec.Execute(ctx, job)
	res.Elapsed = roundTenth(time.Since(start).Seconds())

	if err != nil {
		res.Status = StatusError
		res.Error = err.Error()
		r.logger.Error("job failed",
			zap.String("job_id", job.ID),
			zap.String("run_id", res.RunID),
			zap.Float64("elapsed_seconds", res.Elapsed),
			zap.Error(err),
		)
		return res, nil
	}

	res.Status = StatusSuccess
	res.Output = output
	r.logger.Info("job completed",
		zap.String("job_id", job.ID),
		zap.String("run_id", res.RunID),
		zap.Float64("elapsed_seconds", res.Elapsed),
	)
	return res, nil
}

// RunDue runs every enabled job that is due, or only the job named force
// regardless of its schedule, and records the outcome of each run.
func (r *Runner) RunDue(ctx context.Context, force string) ([]JobResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	jobs, err := r.jobs()
	if err != nil {
		return nil, err
	}
	state, err := r.state.Load(ctx)
	if err != nil {
		return nil, err
	}

	if force != "" && !hasJob(jobs, force) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, force)
	}

	now := r.clock()
	var results []JobResult
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		if !job.IsEnabled() {
			continue
		}
		if force != "" && job.ID != force {
			continue
		}
		if force == "" && !Due(job, state[job.ID], now) {
			continue
		}

		res, err := r.Run(ctx, job)
		if err != nil {
			r.logger.Error("skipping job", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		results = append(results, *res)
		state[job.ID] = r.record(res)
	}

	if err := r.state.Save(ctx, state); err != nil {
		return results, fmt.Errorf("failed to save state: %w", err)
	}
	return results, nil
}

func (r *Runner) record(res *JobResult) JobState {
	st := JobState{
		LastRun:    r.clock().Format(TimeLayout),
		LastStatus: res.Status,
	}
	if res.Status == StatusSuccess {
		st.LastElapsed = res.Elapsed
	} else {
		st.LastError = truncate(res.Error, maxErrorLen)
	}
	return st
}

func hasJob(jobs []Job, id string) bool {
	for _, j := range jobs {
		if j.ID == id {
			return true
		}
	}
	return false
}

func roundTenth(f float64) float64 {
	return math.Round(f*10) / 10
}

// truncate keeps the first n runes of s
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// tail keeps the last n runes of s
func tail(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
