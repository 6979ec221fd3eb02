package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
)

// ProcessHandle abstracts one worker OS process so the supervisor logic stays
// platform-independent. Handles come in two flavors: managed (we spawned the
// process and hold the exec.Cmd) and attached (an orphan from a previous
// supervisor run, tracked by pid only).
type ProcessHandle interface {
	PID() int
	Alive() bool
	// Terminate asks the process to exit gracefully.
	Terminate() error
	// Kill forces the process down.
	Kill() error
}

// SpawnSpec carries the arguments of one worker process.
type SpawnSpec struct {
	WorkerID    string
	UserID      uint
	AccountID   uint
	SessionPath string
}

// Launcher creates and reattaches worker process handles.
type Launcher interface {
	Spawn(spec SpawnSpec) (ProcessHandle, error)
	Attach(pid int) ProcessHandle
}

// ExecLauncher runs the worker entry-point binary as a subprocess, one per
// account, redirecting its stderr to a per-worker log file under DataDir.
type ExecLauncher struct {
	Binary  string
	DataDir string
}

// Spawn starts a worker process for the given account session.
func (l *ExecLauncher) Spawn(spec SpawnSpec) (ProcessHandle, error) {
	sessionPath := spec.SessionPath
	if !filepath.IsAbs(sessionPath) {
		if abs, err := filepath.Abs(sessionPath); err == nil {
			sessionPath = abs
		}
	}
	args := []string{
		"--user-id", strconv.FormatUint(uint64(spec.UserID), 10),
		"--session", sessionPath,
		"--account-id", strconv.FormatUint(uint64(spec.AccountID), 10),
	}
	cmd := exec.Command(l.Binary, args...)
	cmd.Stdin = nil
	cmd.Stdout = nil

	if err := os.MkdirAll(l.DataDir, 0o755); err == nil {
		logPath := filepath.Join(l.DataDir, fmt.Sprintf("worker_%d_%s.log", spec.AccountID, spec.WorkerID))
		if logFile, err := os.Create(logPath); err == nil {
			// The child gets its own descriptor on Start; the parent's copy
			// must not outlive Spawn or every spawn leaks an fd.
			defer logFile.Close()
			cmd.Stderr = logFile
		}
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker process: %w", err)
	}
	// Reap the child when it exits so Alive probes see the death.
	go cmd.Wait()
	return &managedProcess{cmd: cmd}, nil
}

// Attach wraps a pid from the durable registry without a subprocess handle;
// liveness is checked by signal-0 probing.
func (l *ExecLauncher) Attach(pid int) ProcessHandle {
	return &attachedProcess{pid: pid}
}

type managedProcess struct {
	cmd *exec.Cmd
}

func (p *managedProcess) PID() int { return p.cmd.Process.Pid }

func (p *managedProcess) Alive() bool {
	return p.cmd.Process.Signal(syscall.Signal(0)) == nil
}

func (p *managedProcess) Terminate() error {
	return p.cmd.Process.Signal(syscall.SIGTERM)
}

func (p *managedProcess) Kill() error {
	return p.cmd.Process.Kill()
}

type attachedProcess struct {
	pid int
}

func (p *attachedProcess) PID() int { return p.pid }

func (p *attachedProcess) Alive() bool {
	proc, err := os.FindProcess(p.pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

func (p *attachedProcess) Terminate() error {
	proc, err := os.FindProcess(p.pid)
	if err != nil {
		return err
	}
	return proc.Signal(syscall.SIGTERM)
}

func (p *attachedProcess) Kill() error {
	proc, err := os.FindProcess(p.pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}
