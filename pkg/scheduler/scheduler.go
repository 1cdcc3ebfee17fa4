package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/fadedpez/royalcharge/internal/logging"
	"github.com/sirupsen/logrus"
)

// Task represents a scheduled task
type Task struct {
	Name     string
	Interval time.Duration
	Fn       func(context.Context) error
}

// Scheduler manages scheduled tasks
type Scheduler struct {
	tasks   []*Task
	running bool
	mutex   sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	log     *logging.Logger
}

// NewScheduler creates a new scheduler
func NewScheduler(log *logging.Logger) *Scheduler {
	if log == nil {
		log = logging.Discard
	}
	return &Scheduler{
		tasks:   make([]*Task, 0),
		running: false,
		log:     log.Component("scheduler"),
	}
}

// AddTask adds a task to the scheduler. Tasks added after Start are not run.
func (s *Scheduler) AddTask(name string, interval time.Duration, fn func(context.Context) error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.tasks = append(s.tasks, &Task{
		Name:     name,
		Interval: interval,
		Fn:       fn,
	})
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	for _, task := range s.tasks {
		s.wg.Add(1)
		go s.runTask(ctx, task)
	}

	s.log.WithFields(logrus.Fields{"tasks": len(s.tasks)}).Info("scheduler started")
}

// Stop stops the scheduler and waits for running tasks to return
func (s *Scheduler) Stop() {
	s.mutex.Lock()
	if !s.running {
		s.mutex.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mutex.Unlock()

	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

// runTask runs a task at the specified interval
func (s *Scheduler) runTask(ctx context.Context, task *Task) {
	defer s.wg.Done()

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	log := s.log.WithFields(logrus.Fields{"task": task.Name})

	// Run the task immediately on startup
	log.Debug("running task on startup")
	if err := task.Fn(ctx); err != nil {
		log.WithError(err).Error("task failed")
	}

	for {
		select {
		case <-ticker.C:
			log.Debug("running scheduled task")
			if err := task.Fn(ctx); err != nil {
				log.WithError(err).Error("task failed")
			}
		case <-ctx.Done():
			log.Debug("task stopped")
			return
		}
	}
}
