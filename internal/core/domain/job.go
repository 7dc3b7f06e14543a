// Package domain defines the core domain models for ussal.
package domain

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
	"time"
)

// JobSpec constraints.
const (
	MaxJobArgs       = 256
	MaxJobArgLength  = 64 * 1024
	MaxJobEnvEntries = 128
)

var envKeyPattern = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)

// reservedEnvKeys are fixed by the executor for the sandbox identity.
var reservedEnvKeys = map[string]bool{
	"PATH":    true,
	"HOME":    true,
	"USER":    true,
	"LOGNAME": true,
	"SHELL":   true,
}

// JobSpec describes a single workload submitted by a client.
type JobSpec struct {
	// Command is the program to run, resolved through the sandbox PATH.
	Command string `json:"command"`

	// Args are passed to Command verbatim, without shell interpretation.
	Args []string `json:"args,omitempty"`

	// Env holds additional environment variables for the workload.
	Env map[string]string `json:"env,omitempty"`

	// TimeoutSeconds limits wall time; 0 selects the server default.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// Validate checks the job against the structural rules a job must satisfy
// before it is accepted.
func (j *JobSpec) Validate() error {
	if strings.TrimSpace(j.Command) == "" {
		return ErrInvalidJob.WithDetails("command is required")
	}
	if strings.ContainsRune(j.Command, 0) {
		return ErrInvalidJob.WithDetails("command contains NUL byte")
	}
	if len(j.Args) > MaxJobArgs {
		return ErrInvalidJob.WithDetails(fmt.Sprintf("too many args (max %d)", MaxJobArgs))
	}
	for i, a := range j.Args {
		if strings.ContainsRune(a, 0) {
			return ErrInvalidJob.WithDetails(fmt.Sprintf("arg %d contains NUL byte", i))
		}
		if len(a) > MaxJobArgLength {
			return ErrInvalidJob.WithDetails(fmt.Sprintf("arg %d too long", i))
		}
	}
	if len(j.Env) > MaxJobEnvEntries {
		return ErrInvalidJob.WithDetails(fmt.Sprintf("too many env entries (max %d)", MaxJobEnvEntries))
	}
	for k, v := range j.Env {
		if !envKeyPattern.MatchString(k) {
			return ErrInvalidJob.WithDetails(fmt.Sprintf("invalid env key %q", k))
		}
		if reservedEnvKeys[k] || strings.HasPrefix(k, "LD_") {
			return ErrInvalidJob.WithDetails(fmt.Sprintf("env key %q is reserved", k))
		}
		if strings.ContainsRune(v, 0) {
			return ErrInvalidJob.WithDetails(fmt.Sprintf("env %s contains NUL byte", k))
		}
	}
	if j.TimeoutSeconds < 0 {
		return ErrInvalidJob.WithDetails("timeout_seconds must not be negative")
	}
	return nil
}

// Clone returns a deep copy of the job spec.
func (j *JobSpec) Clone() *JobSpec {
	return &JobSpec{
		Command:        j.Command,
		Args:           slices.Clone(j.Args),
		Env:            maps.Clone(j.Env),
		TimeoutSeconds: j.TimeoutSeconds,
	}
}

// Argv returns the command followed by its arguments.
func (j *JobSpec) Argv() []string {
	argv := make([]string, 0, len(j.Args)+1)
	argv = append(argv, j.Command)
	return append(argv, j.Args...)
}

// Environ returns Env as sorted KEY=VALUE pairs.
func (j *JobSpec) Environ() []string {
	keys := slices.Sorted(maps.Keys(j.Env))
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+j.Env[k])
	}
	return env
}

// EffectiveTimeout resolves the wall time limit for the job.
// A zero request selects def; any request is capped at limit when limit > 0.
func (j *JobSpec) EffectiveTimeout(def, limit time.Duration) time.Duration {
	timeout := def
	if j.TimeoutSeconds > 0 {
		timeout = time.Duration(j.TimeoutSeconds) * time.Second
	}
	if limit > 0 && (timeout <= 0 || timeout > limit) {
		timeout = limit
	}
	return timeout
}

// JobResult is the terminal outcome of one execution.
type JobResult struct {
	// ExitCode is the workload exit status, or -1 when it never ran or
	// was killed by a signal.
	ExitCode int

	// Reason is empty on success.
	Reason Reason

	// Duration is the wall time from spawn to exit.
	Duration time.Duration
}

// Succeeded reports whether the workload exited 0 within its limits.
func (r JobResult) Succeeded() bool {
	return r.ExitCode == 0 && r.Reason == ReasonNone
}
