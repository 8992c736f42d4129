package schedule

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type Scheduler interface {
	AddJob(job Job, spec string) error
	Start(ctx context.Context)
	Stop()
}

type Option func(*CronScheduler)

// WithJobTimeout bounds a single run of any job.
func WithJobTimeout(d time.Duration) Option {
	return func(c *CronScheduler) { c.timeout = d }
}

// WithRunOnStart fires every job once when Start is called, so the first
// sweep does not wait for the next cron tick.
func WithRunOnStart() Option {
	return func(c *CronScheduler) { c.runOnStart = true }
}

// task is one scheduled job. At most one run of a task is in flight.
type task struct {
	job     Job
	spec    string
	running atomic.Bool
}

type CronScheduler struct {
	cron       *cron.Cron
	tasks      map[string]*task
	timeout    time.Duration
	runOnStart bool

	ctx    context.Context
	kickWG sync.WaitGroup
}

func NewCronScheduler(opts ...Option) *CronScheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := &CronScheduler{
		cron:  cron.New(cron.WithParser(parser)),
		tasks: make(map[string]*task),
		ctx:   context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddJob registers job under its name; a name can only be scheduled once.
func (c *CronScheduler) AddJob(job Job, spec string) error {
	name := job.Name()
	if _, ok := c.tasks[name]; ok {
		return fmt.Errorf("job %s already scheduled", name)
	}
	t := &task{job: job, spec: spec}
	if _, err := c.cron.AddFunc(spec, func() { c.fire(t) }); err != nil {
		return fmt.Errorf("schedule job %s with spec %q: %w", name, spec, err)
	}
	c.tasks[name] = t
	logutil.GetLogger(context.Background()).Info("job scheduled",
		zap.String("job", name), zap.String("spec", spec))
	return nil
}

func (c *CronScheduler) Start(ctx context.Context) {
	if ctx != nil {
		c.ctx = ctx
	}
	c.cron.Start()
	if !c.runOnStart {
		return
	}
	for _, t := range c.tasks {
		c.kickWG.Add(1)
		go func(t *task) {
			defer c.kickWG.Done()
			c.fire(t)
		}(t)
	}
}

// Stop waits for running jobs to return.
func (c *CronScheduler) Stop() {
	done := c.cron.Stop()
	<-done.Done()
	c.kickWG.Wait()
}

// fire runs t unless a previous run is still in flight.
func (c *CronScheduler) fire(t *task) {
	logger := logutil.GetLogger(c.ctx).With(zap.String("job", t.job.Name()), zap.String("spec", t.spec))
	if !t.running.CompareAndSwap(false, true) {
		logger.Info("job skipped: still running")
		return
	}
	defer t.running.Store(false)

	ctx := c.ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	start := time.Now()
	err := runJob(ctx, t.job)
	elapsed := time.Since(start)
	if err != nil {
		logger.Error("job failed", zap.Error(err), zap.Duration("duration", elapsed))
		return
	}
	logger.Debug("job finished", zap.Duration("duration", elapsed))
}

func runJob(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panic: %v", r)
		}
	}()
	return job.Run(ctx)
}
