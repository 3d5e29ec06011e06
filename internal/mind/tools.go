package mind

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/keshon/velvet/internal/ai"
	"github.com/keshon/velvet/pkg/jobmgr"
)

// The closed set of administrative actions the model may invoke. This is a
// fixed vocabulary matched explicitly, not a plugin surface.
const (
	ToolServiceStart   = "service_start"
	ToolServiceStop    = "service_stop"
	ToolServiceRestart = "service_restart"
	ToolServiceStatus  = "service_status"
)

// ServiceManager binds the tool vocabulary to one managed external process.
type ServiceManager struct {
	service string // name shown to the model and used as the job key
	cmdline string // shell command that runs the service
	jobs    *jobmgr.Manager
	runner  func(ctx context.Context) error
}

// NewServiceManager manages the named service started via cmdline.
func NewServiceManager(service, cmdline string) *ServiceManager {
	m := &ServiceManager{
		service: service,
		cmdline: cmdline,
		jobs:    jobmgr.NewManager(),
	}
	m.runner = func(ctx context.Context) error {
		return exec.CommandContext(ctx, "sh", "-c", m.cmdline).Run()
	}
	return m
}

// Specs advertises the tool vocabulary to the completion API.
func (m *ServiceManager) Specs() []ai.ToolSpec {
	return []ai.ToolSpec{
		{Name: ToolServiceStart, Description: fmt.Sprintf("Start the %s service.", m.service)},
		{Name: ToolServiceStop, Description: fmt.Sprintf("Stop the %s service.", m.service)},
		{Name: ToolServiceRestart, Description: fmt.Sprintf("Restart the %s service.", m.service)},
		{Name: ToolServiceStatus, Description: fmt.Sprintf("Report whether the %s service is running.", m.service)},
	}
}

// Dispatch executes one tool call and returns the text spoken as the reply.
// Each action checks current state first so repeating it is harmless.
func (m *ServiceManager) Dispatch(ctx context.Context, call *ai.ToolCall) string {
	switch call.Name {
	case ToolServiceStart:
		return m.start()
	case ToolServiceStop:
		return m.stop()
	case ToolServiceRestart:
		m.stop()
		return m.start()
	case ToolServiceStatus:
		if m.jobs.Running(m.service) {
			return fmt.Sprintf("%s is running.", m.service)
		}
		return fmt.Sprintf("%s is stopped.", m.service)
	default:
		return fmt.Sprintf("I don't know the command %q.", call.Name)
	}
}

func (m *ServiceManager) start() string {
	if m.jobs.Running(m.service) {
		return fmt.Sprintf("%s is already running.", m.service)
	}
	if err := m.jobs.StartAsync(m.service, m.runner); err != nil {
		return fmt.Sprintf("Could not start %s: %v.", m.service, err)
	}
	return fmt.Sprintf("%s started.", m.service)
}

func (m *ServiceManager) stop() string {
	if !m.jobs.Running(m.service) {
		return fmt.Sprintf("%s is already stopped.", m.service)
	}
	if err := m.jobs.Stop(m.service); err != nil {
		return fmt.Sprintf("Could not stop %s: %v.", m.service, err)
	}
	return fmt.Sprintf("%s stopped.", m.service)
}
