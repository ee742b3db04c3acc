package supervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Task statuses.
const (
	StatusStarting   Status = "starting"
	StatusRunning    Status = "running"
	StatusRestarting Status = "restarting"
	StatusStopped    Status = "stopped"
	StatusFailed     Status = "failed"
)

// Status is the lifecycle state of a task.
type Status string

// Defaults for zero Config values.
const (
	DefaultRestartDelay    = 5 * time.Second
	DefaultMaxRestartDelay = 5 * time.Minute
	DefaultStableThreshold = 2 * time.Minute
)

// ErrPanic marks a task failure caused by a recovered panic.
var ErrPanic = errors.New("supervisor: task panicked")

// Config controls restarts.
type Config struct {
	// RestartDelay is the first wait after a failure.
	RestartDelay time.Duration

	// MaxRestartDelay caps the doubling delay.
	MaxRestartDelay time.Duration

	// StableThreshold is how long a run must last to reset the backoff.
	StableThreshold time.Duration

	// MaxRestartAttempts limits consecutive restarts. 0 means unlimited.
	MaxRestartAttempts int
}

// Task is one supervised loop. Run must return when ctx is done; a nil
// return before that means the task finished and is not restarted.
type Task struct {
	Name             string
	Run              func(ctx context.Context) error
	RestartOnFailure bool
}

// Logger defines the logging interface for the supervisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Stats describes one task.
type Stats struct {
	Name         string        `json:"name"`
	Status       Status        `json:"status"`
	RestartCount int           `json:"restart_count"`
	LastError    string        `json:"last_error,omitempty"`
	Uptime       time.Duration `json:"uptime"`
}

type taskState struct {
	status    Status
	restarts  int
	lastError error
	started   time.Time
}

// Group runs tasks under one context and joins them on Wait.
//
// Thread Safety: All methods are safe for concurrent use.
type Group struct {
	cfg    Config
	logger Logger
	ctx    context.Context
	eg     *errgroup.Group

	// sleep waits d or until ctx is done. Replaced in tests.
	sleep func(ctx context.Context, d time.Duration) bool

	mu    sync.RWMutex
	tasks map[string]*taskState
}

// New creates a group whose tasks stop when ctx is done or a task fails
// for good.
func New(ctx context.Context, cfg Config) *Group {
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = DefaultRestartDelay
	}
	if cfg.MaxRestartDelay < cfg.RestartDelay {
		cfg.MaxRestartDelay = max(DefaultMaxRestartDelay, cfg.RestartDelay)
	}
	if cfg.StableThreshold <= 0 {
		cfg.StableThreshold = DefaultStableThreshold
	}

	eg, egCtx := errgroup.WithContext(ctx)
	return &Group{
		cfg:    cfg,
		logger: noopLogger{},
		ctx:    egCtx,
		eg:     eg,
		sleep:  sleepContext,
		tasks:  make(map[string]*taskState),
	}
}

// SetLogger sets the logger for the group.
func (g *Group) SetLogger(logger Logger) {
	if logger != nil {
		g.logger = logger
	}
}

// Context returns the group context, done once any task fails for good.
func (g *Group) Context() context.Context {
	return g.ctx
}

// Go starts a task.
func (g *Group) Go(task Task) {
	g.mu.Lock()
	g.tasks[task.Name] = &taskState{status: StatusStarting}
	g.mu.Unlock()

	g.eg.Go(func() error {
		return g.supervise(task)
	})
}

// Wait blocks until every task has returned. It returns the error of the
// first task that failed for good, or nil after a clean shutdown.
func (g *Group) Wait() error {
	return g.eg.Wait()
}

func (g *Group) supervise(task Task) error {
	delay := g.cfg.RestartDelay
	consecutive := 0

	for {
		started := time.Now()
		g.update(task.Name, func(s *taskState) {
			s.status = StatusRunning
			s.started = started
		})
		g.logger.Debug("task started", "task", task.Name)

		err := g.runOnce(task)

		if g.ctx.Err() != nil {
			g.update(task.Name, func(s *taskState) { s.status = StatusStopped })
			g.logger.Debug("task stopped", "task", task.Name)
			return nil
		}
		if err == nil {
			g.update(task.Name, func(s *taskState) { s.status = StatusStopped })
			g.logger.Info("task finished", "task", task.Name)
			return nil
		}

		g.update(task.Name, func(s *taskState) {
			s.status = StatusFailed
			s.lastError = err
		})
		g.logger.Warn("task failed", "task", task.Name, "error", err)

		if !task.RestartOnFailure {
			return fmt.Errorf("task %s: %w", task.Name, err)
		}

		if time.Since(started) >= g.cfg.StableThreshold {
			delay = g.cfg.RestartDelay
			consecutive = 0
		}
		consecutive++
		if g.cfg.MaxRestartAttempts > 0 && consecutive > g.cfg.MaxRestartAttempts {
			g.logger.Error("max restart attempts reached", "task", task.Name, "attempts", consecutive-1)
			return fmt.Errorf("task %s: giving up after %d restarts: %w", task.Name, consecutive-1, err)
		}

		g.update(task.Name, func(s *taskState) {
			s.status = StatusRestarting
			s.restarts++
		})
		g.logger.Info("restarting task", "task", task.Name, "attempt", consecutive, "delay", delay)
		if !g.sleep(g.ctx, delay) {
			g.update(task.Name, func(s *taskState) { s.status = StatusStopped })
			return nil
		}
		delay = min(delay*2, g.cfg.MaxRestartDelay)
	}
}

// runOnce runs the task, turning a panic into an error.
func (g *Group) runOnce(task Task) (err error) {
	defer func() {
		if p := recover(); p != nil {
			g.logger.Error("task panicked", "task", task.Name, "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrPanic, p)
		}
	}()
	return task.Run(g.ctx)
}

func (g *Group) update(name string, fn func(s *taskState)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.tasks[name]; ok {
		fn(s)
	}
}

// Stats returns every task, sorted by name.
func (g *Group) Stats() []Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Stats, 0, len(g.tasks))
	for name, s := range g.tasks {
		st := Stats{Name: name, Status: s.status, RestartCount: s.restarts}
		if s.lastError != nil {
			st.LastError = s.lastError.Error()
		}
		if s.status == StatusRunning && !s.started.IsZero() {
			st.Uptime = time.Since(s.started)
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
