package update

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"BetSentinel/internal/errs"
)

// Restarter replaces the running process with the deployed code.
type Restarter interface {
	// Restart schedules the restart and returns; the caller gets a chance to
	// report before the process goes away.
	Restart(ctx context.Context) error
}

// Installer refreshes dependencies after the code tree moved.
type Installer interface {
	Install(ctx context.Context, root string) error
}

// NewRestarter restarts through systemd when the environment variable named
// serviceEnv holds a unit name, and re-executes the binary otherwise.
func NewRestarter(serviceEnv string, delay time.Duration, log *zap.Logger) Restarter {
	if log == nil {
		log = zap.NewNop()
	}
	if unit := strings.TrimSpace(os.Getenv(serviceEnv)); unit != "" {
		return &SystemdRestarter{Unit: unit, Delay: delay, Log: log}
	}
	return &ExecRestarter{Delay: delay, Log: log}
}

type SystemdRestarter struct {
	Unit  string
	Delay time.Duration
	Log   *zap.Logger
}

func (s *SystemdRestarter) Restart(context.Context) error {
	s.Log.Info("restart scheduled", zap.String("unit", s.Unit), zap.Duration("delay", s.Delay))
	time.AfterFunc(s.Delay, func() {
		out, err := exec.Command("systemctl", "restart", s.Unit).CombinedOutput()
		if err != nil {
			s.Log.Error("systemctl restart failed", zap.String("unit", s.Unit), zap.ByteString("output", out), zap.Error(err))
		}
	})
	return nil
}

// ExecRestarter replaces the process image with a fresh copy of itself.
type ExecRestarter struct {
	Delay time.Duration
	Log   *zap.Logger
}

func (e *ExecRestarter) Restart(context.Context) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("%w: locate executable: %v", errs.ErrUpdate, err)
	}
	e.Log.Info("re-exec scheduled", zap.String("exe", exe), zap.Duration("delay", e.Delay))
	time.AfterFunc(e.Delay, func() {
		_ = e.Log.Sync()
		if err := syscall.Exec(exe, os.Args, os.Environ()); err != nil {
			e.Log.Error("re-exec failed", zap.Error(err))
		}
	})
	return nil
}

// CommandInstaller runs a fixed command in the repository root.
type CommandInstaller struct {
	Args    []string
	Timeout time.Duration
}

func (c *CommandInstaller) Install(ctx context.Context, root string) error {
	if len(c.Args) == 0 {
		return nil
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.Args[0], c.Args[1:]...)
	cmd.Dir = root
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s: %v: %s", errs.ErrExternal, strings.Join(c.Args, " "), err, truncate(strings.TrimSpace(out.String()), 600))
	}
	return nil
}
