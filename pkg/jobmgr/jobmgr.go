// Package jobmgr runs named background jobs with cancellation and in-memory
// tracking. Jobs run in their own goroutine and deregister themselves on
// completion. No retry logic, no persistence.
package jobmgr

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

type job struct {
	cancel context.CancelFunc
}

// Manager starts, stops and tracks jobs. Safe for concurrent use.
type Manager struct {
	mu   sync.Mutex
	jobs map[string]*job
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{jobs: make(map[string]*job)}
}

// StartAsync runs a job in a separate goroutine and returns immediately.
// A job name can only run once at a time.
func (m *Manager) StartAsync(name string, runner func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(context.Background())
	j := &job{cancel: cancel}

	m.mu.Lock()
	if _, exists := m.jobs[name]; exists {
		m.mu.Unlock()
		cancel()
		return fmt.Errorf("job %q is already running", name)
	}
	m.jobs[name] = j
	m.mu.Unlock()

	go func() {
		log.Info().Str("job", name).Msg("job started")
		if err := runner(ctx); err != nil {
			log.Warn().Str("job", name).Err(err).Msg("job ended with error")
		} else {
			log.Info().Str("job", name).Msg("job done")
		}

		// Deregister only if the slot still holds this run; a stop plus
		// restart may already have replaced it.
		m.mu.Lock()
		if m.jobs[name] == j {
			delete(m.jobs, name)
		}
		m.mu.Unlock()
	}()

	return nil
}

// Stop cancels a running job by name.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[name]
	if !ok {
		return fmt.Errorf("job %q not running", name)
	}
	j.cancel()
	delete(m.jobs, name)
	return nil
}

// Running reports whether a job with this name is active.
func (m *Manager) Running(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.jobs[name]
	return ok
}

// List returns active job names.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.jobs))
	for k := range m.jobs {
		out = append(out, k)
	}
	return out
}

// Status returns a human-readable summary of active jobs.
func (m *Manager) Status() string {
	active := m.List()
	if len(active) == 0 {
		return "No jobs are running."
	}
	return fmt.Sprintf("Running jobs: %s", strings.Join(active, ", "))
}
