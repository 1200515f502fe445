package proc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/procfs"

	"github.com/skillcoder/workermem-governor/internal/logic/governor"
)

// readyLine is the handshake a worker prints on stdout once it can serve.
const readyLine = "ready"

var ErrReadyTimeout = errors.New("worker did not become ready in time")

// Adapter forks and signals local worker processes and reads their
// resident memory from /proc.
type Adapter struct {
	logger       *slog.Logger
	command      []string
	readyTimeout time.Duration
}

// New creates a new process adapter for the given worker command line.
func New(logger *slog.Logger, command []string, readyTimeout time.Duration) (*Adapter, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("new proc adapter: empty worker command")
	}

	return &Adapter{
		logger:       logger,
		command:      command,
		readyTimeout: readyTimeout,
	}, nil
}

var (
	_ governor.ProcessRunner = (*Adapter)(nil)
	_ governor.MemorySampler = (*Adapter)(nil)
)

// SpawnCommand forks one worker process and blocks until it prints its
// ready line. Workers run in their own process group so governor signals
// never leak to them and vice versa.
func (a *Adapter) SpawnCommand(ctx context.Context) (*governor.StartedProcess, error) {
	cmd := exec.Command(a.command[0], a.command[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stderr = os.Stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}

	pid := cmd.Process.Pid
	readyCh := make(chan struct{}, 1)
	exited := make(chan struct{})

	// One goroutine owns stdout for the worker's whole life: it watches
	// for the ready line, then keeps draining so the worker never blocks
	// on a full pipe, and finally reaps the process.
	go func() {
		defer close(exited)

		scanner := bufio.NewScanner(stdout)
		signalled := false

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())

			if !signalled && line == readyLine {
				signalled = true
				readyCh <- struct{}{}

				continue
			}

			a.logger.Debug("worker stdout", "pid", pid, "line", line)
		}

		if err := cmd.Wait(); err != nil {
			a.logger.Debug("worker exited", "pid", pid, "reason", err)
		}
	}()

	select {
	case <-readyCh:
	case <-exited:
		return nil, fmt.Errorf("worker pid %d exited before becoming ready", pid)
	case <-time.After(a.readyTimeout):
		_ = syscall.Kill(pid, syscall.SIGKILL)

		return nil, fmt.Errorf("worker pid %d: %w", pid, ErrReadyTimeout)
	case <-ctx.Done():
		_ = syscall.Kill(pid, syscall.SIGKILL)

		return nil, fmt.Errorf("spawn worker: %w", ctx.Err())
	}

	a.logger.Debug("worker process ready", "pid", pid)

	return &governor.StartedProcess{PID: pid, Exited: exited}, nil
}

// SignalQuitCommand asks a worker to exit on its own.
func (a *Adapter) SignalQuitCommand(_ context.Context, pid int) error {
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return fmt.Errorf("signal quit pid %d: %w", pid, errProcessNotFound)
		}

		return fmt.Errorf("signal quit pid %d: %w", pid, err)
	}

	return nil
}

// KillCommand terminates a worker unconditionally.
func (a *Adapter) KillCommand(_ context.Context, pid int) error {
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return fmt.Errorf("kill pid %d: %w", pid, errProcessNotFound)
		}

		return fmt.Errorf("kill pid %d: %w", pid, err)
	}

	return nil
}

// SampleMemoryQuery reads the worker's resident memory from /proc.
// A missing /proc entry surfaces as a not-found error; it is never
// reported as a zero-byte sample.
func (a *Adapter) SampleMemoryQuery(_ context.Context, pid int) (uint64, error) {
	p, err := procfs.NewProc(pid)
	if err != nil {
		return 0, fmt.Errorf("open proc %d: %w", pid, errProcessNotFound)
	}

	stat, err := p.Stat()
	if err != nil {
		if os.IsNotExist(err) || errors.Is(err, syscall.ESRCH) {
			return 0, fmt.Errorf("read proc %d stat: %w", pid, errProcessNotFound)
		}

		return 0, fmt.Errorf("read proc %d stat: %w", pid, err)
	}

	rss := stat.ResidentMemory()
	if rss < 0 {
		return 0, fmt.Errorf("read proc %d stat: negative resident memory", pid)
	}

	return uint64(rss), nil
}
