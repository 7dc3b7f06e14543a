package executor

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"time"

	"github.com/yndnr/ussal-go/internal/core/domain"
)

// Defaults for SudoSpawner.
const (
	DefaultSudoPath  = "sudo"
	DefaultEnvPath   = "/usr/bin/env"
	DefaultShellPath = "/bin/sh"
	DefaultPath      = "/usr/local/bin:/usr/bin:/bin"

	// jobWrapper starts the workload in the sandbox home. $0 is the
	// process name, "$@" is the workload argv.
	jobWrapper = `cd "$HOME" || exit 126; exec "$@"`
	jobName    = "ussal-job"

	killTimeout = 10 * time.Second
)

// SudoSpawner starts workloads as the sandbox identity of one delegation
// rule via `sudo -n -u <sandbox>`. It never prompts and never targets any
// other identity.
type SudoSpawner struct {
	rule      domain.DelegationRule
	sudoPath  string
	envPath   string
	shellPath string
	logger    *slog.Logger
}

// SudoOption configures a SudoSpawner.
type SudoOption func(*SudoSpawner)

// WithSudoPath overrides the sudo binary.
func WithSudoPath(path string) SudoOption {
	return func(s *SudoSpawner) { s.sudoPath = path }
}

// WithEnvPath overrides the env binary run under sudo.
func WithEnvPath(path string) SudoOption {
	return func(s *SudoSpawner) { s.envPath = path }
}

// WithShellPath overrides the shell used for the home directory wrapper.
func WithShellPath(path string) SudoOption {
	return func(s *SudoSpawner) { s.shellPath = path }
}

// WithSudoLogger sets the logger.
func WithSudoLogger(logger *slog.Logger) SudoOption {
	return func(s *SudoSpawner) { s.logger = logger }
}

// NewSudoSpawner creates a spawner bound to rule.
func NewSudoSpawner(rule domain.DelegationRule, opts ...SudoOption) (*SudoSpawner, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	s := &SudoSpawner{
		rule:      rule,
		sudoPath:  DefaultSudoPath,
		envPath:   DefaultEnvPath,
		shellPath: DefaultShellPath,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Rule returns the delegation rule the spawner is bound to.
func (s *SudoSpawner) Rule() domain.DelegationRule {
	return s.rule
}

// SpawnAs starts cmd as target, which must be the rule's sandbox identity.
func (s *SudoSpawner) SpawnAs(ctx context.Context, target domain.Identity, cmd Command) (Process, error) {
	if !s.rule.Permits(target) {
		return nil, domain.ErrScopeViolation.WithDetails(fmt.Sprintf("target %q", target.Name))
	}
	if len(cmd.Argv) == 0 {
		return nil, domain.ErrSpawnFailed.WithDetails("empty argv")
	}
	if err := ctx.Err(); err != nil {
		return nil, domain.ErrCancelled.WithCause(err)
	}

	c := exec.Command(s.sudoPath, s.args(target, cmd)...)
	c.Env = []string{"PATH=" + DefaultPath}
	c.Dir = "/"
	c.Stdout = cmd.Stdout
	c.Stderr = cmd.Stderr

	p, err := StartGroup(c, func(pgid int, strays []int) error {
		return s.killAs(target, pgid, strays)
	})
	if err != nil {
		return nil, domain.ErrSpawnFailed.WithCause(err)
	}
	return p, nil
}

// args builds the sudo argument vector:
//
//	-n -H -u <sandbox> -- env K=V... sh -c <wrapper> ussal-job argv...
//
// sudo resets the environment, so the workload environment travels as env
// assignments. Keys never begin with '-', so env cannot read them as options.
func (s *SudoSpawner) args(target domain.Identity, cmd Command) []string {
	args := make([]string, 0, 10+len(cmd.Env)+len(cmd.Argv))
	args = append(args, "-n", "-H", "-u", target.Name, "--", s.envPath)
	args = append(args, cmd.Env...)
	args = append(args, s.shellPath, "-c", jobWrapper, jobName)
	return append(args, cmd.Argv...)
}

// killAs kills the group and the strays that left it from inside the
// sandbox identity, which is allowed to signal its own processes even when
// the service is not.
func (s *SudoSpawner) killAs(target domain.Identity, pgid int, strays []int) error {
	ctx, cancel := context.WithTimeout(context.Background(), killTimeout)
	defer cancel()

	c := exec.CommandContext(ctx, s.sudoPath, s.killArgs(target, pgid, strays)...)
	c.Env = []string{"PATH=" + DefaultPath}
	out, err := c.CombinedOutput()
	if err != nil {
		s.logger.Warn("sandbox kill failed", "pgid", pgid, "strays", len(strays), "error", err, "output", string(out))
		return fmt.Errorf("kill process group %d as %s: %w", pgid, target.Name, err)
	}
	return nil
}

// killArgs builds `-n -u <sandbox> -- kill -KILL -- -<pgid> <stray>...`.
func (s *SudoSpawner) killArgs(target domain.Identity, pgid int, strays []int) []string {
	args := make([]string, 0, 8+len(strays))
	args = append(args, "-n", "-u", target.Name, "--", "kill", "-KILL", "--", "-"+strconv.Itoa(pgid))
	for _, pid := range strays {
		args = append(args, strconv.Itoa(pid))
	}
	return args
}
