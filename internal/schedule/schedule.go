// Package schedule runs the monthly report job and the optional extract
// import on cron schedules.
package schedule

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/advisor-reports/internal/metrics"
)

// Job is a unit of scheduled work. Run makes a single attempt.
type Job interface {
	Name() string
	Spec() string
	Run(ctx context.Context) error
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMetrics records job durations and outcomes on p.
func WithMetrics(p *metrics.Pipeline) Option {
	return func(s *Scheduler) { s.metrics = p }
}

// WithLocation evaluates cron specs in loc instead of local time.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.loc = loc }
}

// Scheduler triggers jobs from six-field cron specs (seconds first).
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	loc     *time.Location
	metrics *metrics.Pipeline
	jobs    map[string]Job
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates an idle Scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		loc:  time.Local,
		jobs: make(map[string]Job),
	}
	for _, o := range opts {
		o(s)
	}
	s.cron = cron.New(cron.WithSeconds(), cron.WithLocation(s.loc))
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Add registers job. Names must be unique.
func (s *Scheduler) Add(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, ok := s.jobs[name]; ok {
		return eris.Errorf("schedule: job %s already registered", name)
	}
	if _, err := s.cron.AddFunc(job.Spec(), func() { _ = s.run(s.ctx, job) }); err != nil {
		return eris.Wrapf(err, "schedule: invalid spec %q for job %s", job.Spec(), name)
	}
	s.jobs[name] = job
	zap.L().Info("schedule: job registered", zap.String("job", name), zap.String("spec", job.Spec()))
	return nil
}

// Jobs returns the registered job names, sorted.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for n := range s.jobs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Start begins firing jobs. It returns immediately.
func (s *Scheduler) Start() {
	zap.L().Info("schedule: starting", zap.Strings("jobs", s.Jobs()))
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	zap.L().Info("schedule: stopped")
}

// RunNow runs the named job synchronously.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return eris.Errorf("schedule: unknown job %s", name)
	}
	return s.run(ctx, job)
}

func (s *Scheduler) run(ctx context.Context, job Job) error {
	start := time.Now()
	log := zap.L().With(zap.String("job", job.Name()))
	log.Info("schedule: job started")

	err := job.Run(ctx)
	dur := time.Since(start)
	s.metrics.ObserveJob(job.Name(), dur, err)

	if err != nil {
		log.Error("schedule: job failed", zap.Duration("duration", dur), zap.Error(err))
		return err
	}
	log.Info("schedule: job complete", zap.Duration("duration", dur))
	return nil
}
