// Package executortest provides a Spawner for tests that runs workloads as
// the current user. It must never be wired into a server.
package executortest

import (
	"context"
	"os/exec"
	"sync"
	"testing"

	"github.com/yndnr/ussal-go/internal/core/domain"
	"github.com/yndnr/ussal-go/internal/executor"
)

// Spawner starts workloads as the calling user in a temporary home.
type Spawner struct {
	Home string

	mu      sync.Mutex
	targets []domain.Identity
	argvs   [][]string
	envs    [][]string
	procs   []executor.Process
}

// NewSpawner returns a Spawner whose home directory is removed with t.
func NewSpawner(t testing.TB) *Spawner {
	t.Helper()
	return &Spawner{Home: t.TempDir()}
}

// Identity returns a sandbox identity for use with this spawner.
func Identity() domain.Identity {
	return domain.Identity{Name: "ussal-test-sandbox", UID: 65534, GID: 65534}
}

// SpawnAs starts cmd as the current user with HOME set to s.Home.
func (s *Spawner) SpawnAs(ctx context.Context, target domain.Identity, cmd executor.Command) (executor.Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.ErrCancelled.WithCause(err)
	}
	if len(cmd.Argv) == 0 {
		return nil, domain.ErrSpawnFailed.WithDetails("empty argv")
	}

	// Resolve argv[0] against the workload PATH rather than the test's.
	name := cmd.Argv[0]
	if lp, err := lookPath(name, workloadPath(cmd.Env)); err == nil {
		name = lp
	}

	c := exec.Command(name, cmd.Argv[1:]...)
	c.Args[0] = cmd.Argv[0]
	c.Env = append([]string{"HOME=" + s.Home}, cmd.Env...)
	c.Dir = s.Home
	c.Stdout = cmd.Stdout
	c.Stderr = cmd.Stderr

	p, err := executor.StartGroup(c, nil)
	if err != nil {
		return nil, domain.ErrSpawnFailed.WithCause(err)
	}

	s.mu.Lock()
	s.targets = append(s.targets, target)
	s.argvs = append(s.argvs, cmd.Argv)
	s.envs = append(s.envs, cmd.Env)
	s.procs = append(s.procs, p)
	s.mu.Unlock()
	return p, nil
}

// Spawned returns the number of processes started.
func (s *Spawner) Spawned() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.procs)
}

// Last returns the target, argv and environment of the most recent spawn.
func (s *Spawner) Last() (domain.Identity, []string, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.procs)
	if n == 0 {
		return domain.Identity{}, nil, nil
	}
	return s.targets[n-1], s.argvs[n-1], s.envs[n-1]
}

// Process returns the i-th spawned process.
func (s *Spawner) Process(i int) executor.Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.procs[i]
}
