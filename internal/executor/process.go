package executor

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/yndnr/ussal-go/internal/core/domain"
)

// defaultWaitDelay bounds how long output is drained after the workload
// exits while a descendant still holds its stdout or stderr.
const defaultWaitDelay = 2 * time.Second

// Command is a workload ready to start.
type Command struct {
	// Argv is the program and its arguments. Argv[0] is resolved through
	// the PATH entry of Env.
	Argv []string

	// Env is the complete environment of the workload as KEY=VALUE pairs.
	Env []string

	// Stdout and Stderr receive output as it is produced.
	Stdout io.Writer
	Stderr io.Writer
}

// Spawner starts processes as another OS identity.
type Spawner interface {
	// SpawnAs starts cmd as target. The context only bounds the start
	// itself; the returned Process outlives it.
	SpawnAs(ctx context.Context, target domain.Identity, cmd Command) (Process, error)
}

// Process is a started workload and its process group.
type Process interface {
	// Pid returns the process group id.
	Pid() int

	// Wait blocks until the process exits and its output is drained.
	// The exit code is -1 if the process was killed by a signal.
	Wait() (exitCode int, err error)

	// Signal sends sig to the whole process group.
	Signal(sig syscall.Signal) error

	// Kill forcibly terminates every member of the process group and every
	// descendant that left it.
	Kill() error

	// Alive reports whether any member of the process group or any
	// descendant that left it remains.
	Alive() bool
}

// KillFunc forcibly terminates the process group pgid and the descendants
// strays, which run outside it.
type KillFunc func(pgid int, strays []int) error

// GroupProcess is a Process backed by exec.Cmd running in its own
// process group.
type GroupProcess struct {
	cmd  *exec.Cmd
	pgid int
	kill KillFunc

	tree     *processTree
	stopScan chan struct{}
	stopOnce sync.Once
}

// StartGroup starts cmd as the leader of a new process group. kill, if not
// nil, runs before the direct SIGKILL on Kill.
func StartGroup(cmd *exec.Cmd, kill KillFunc) (*GroupProcess, error) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = defaultWaitDelay
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	p := &GroupProcess{
		cmd:      cmd,
		pgid:     cmd.Process.Pid,
		kill:     kill,
		tree:     newProcessTree(cmd.Process.Pid),
		stopScan: make(chan struct{}),
	}
	go p.tree.watch(p.stopScan)
	return p, nil
}

// Pid returns the process group id.
func (p *GroupProcess) Pid() int {
	return p.pgid
}

// Wait blocks until the leader exits and output copying has finished.
func (p *GroupProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	p.stopOnce.Do(func() { close(p.stopScan) })

	code := -1
	if ps := p.cmd.ProcessState; ps != nil {
		code = ps.ExitCode()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		err = nil
	}
	if errors.Is(err, exec.ErrWaitDelay) {
		err = nil
	}
	return code, err
}

// Signal sends sig to the process group. Descendants that left the group
// are recorded first so a later Kill still finds them.
func (p *GroupProcess) Signal(sig syscall.Signal) error {
	p.tree.scan()
	return unix.Kill(-p.pgid, sig)
}

// Kill terminates the process group and its strays with SIGKILL.
func (p *GroupProcess) Kill() error {
	p.tree.scan()
	strays := p.strays()

	var errs []error
	if p.kill != nil {
		if err := p.kill(p.pgid, strays); err != nil {
			errs = append(errs, err)
		}
	}
	if err := unix.Kill(-p.pgid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		errs = append(errs, err)
	}
	for _, pid := range strays {
		// Strays owned by another user answer EPERM here; the kill hook reaches them.
		if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) && !errors.Is(err, unix.EPERM) {
			errs = append(errs, err)
		}
	}
	if !p.Alive() {
		return nil
	}
	return errors.Join(errs...)
}

// Alive reports whether any group member or stray remains. Members owned by
// another user answer EPERM, which still means they exist.
func (p *GroupProcess) Alive() bool {
	if !errors.Is(unix.Kill(-p.pgid, 0), unix.ESRCH) {
		return true
	}
	p.tree.scan()
	return len(p.strays()) > 0
}

// strays returns live descendants outside the process group.
func (p *GroupProcess) strays() []int {
	var out []int
	for _, pid := range p.tree.live() {
		if pgid, err := unix.Getpgid(pid); err == nil && pgid == p.pgid {
			continue
		}
		out = append(out, pid)
	}
	return out
}
