package command

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/yndnr/ussal-go/internal/cli/connection"
	"github.com/yndnr/ussal-go/internal/cli/output"
	"github.com/yndnr/ussal-go/internal/core/domain"
	"github.com/yndnr/ussal-go/internal/protocol"
)

// RunCommand returns the run command.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run a job on the orchestrator and stream its output",
		ArgsUsage: "-- COMMAND [ARG...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "auth-token",
				Aliases: []string{"t"},
				Usage:   "auth token presented to the orchestrator",
				EnvVars: []string{"USSAL_AUTH_TOKEN"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "wall time limit for the job (0 uses the server default)",
			},
			&cli.StringSliceFlag{
				Name:    "env",
				Aliases: []string{"e"},
				Usage:   "extra environment variable for the job (KEY=VALUE, repeatable)",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "suppress the progress spinner and summary",
			},
		},
		Action: runJob,
	}
}

func runJob(c *cli.Context) error {
	flags, err := ParseGlobalFlags(c)
	if err != nil {
		return err
	}

	tok := c.String("auth-token")
	if tok == "" {
		tok = flags.AuthToken
	}
	if tok == "" {
		return errors.New("auth token required (--auth-token, USSAL_AUTH_TOKEN or a profile auth_token)")
	}
	spec, err := buildJobSpec(c.Args().Slice(), c.StringSlice("env"), c.Duration("timeout"))
	if err != nil {
		return err
	}

	tlsConfig, err := flags.TLSConfig()
	if err != nil {
		return err
	}
	client, err := connection.NewJobClient(flags.Address, tlsConfig)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	stdoutW, stderrW := stdout(c), stderr(c)
	quiet := c.Bool("quiet")

	var spinner *output.Spinner
	if !quiet && isTerminal(stderrW) {
		spinner = output.NewSpinner(stderrW, "running "+spec.Command)
		spinner.Start()
	}
	var stopSpinner sync.Once
	halt := func() {
		stopSpinner.Do(func() {
			if spinner != nil {
				spinner.Stop()
			}
		})
	}
	defer halt()

	if flags.Verbose {
		fmt.Fprintf(stderrW, "submitting %q to %s\n", strings.Join(spec.Argv(), " "), client.URL())
	}

	result, err := client.Run(ctx, domain.AuthToken(tok), spec, func(stream protocol.Stream, data []byte) error {
		halt()
		w := stdoutW
		if stream == protocol.Stderr {
			w = stderrW
		}
		_, err := w.Write(data)
		return err
	})
	halt()

	if err == nil && !quiet && flags.Verbose {
		fmt.Fprintf(stderrW, "job finished: %s\n", describeResult(result))
	}
	return jobExit(result, err)
}

// buildJobSpec assembles and validates the job locally so obvious mistakes
// never open a session.
func buildJobSpec(args, env []string, timeout time.Duration) (*domain.JobSpec, error) {
	if len(args) == 0 {
		return nil, errors.New("command required: ussal-cli run [flags] -- COMMAND [ARG...]")
	}
	spec := &domain.JobSpec{Command: args[0], Args: args[1:]}
	if len(args) == 1 {
		spec.Args = nil
	}
	for _, kv := range env {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --env %q (want KEY=VALUE)", kv)
		}
		if spec.Env == nil {
			spec.Env = make(map[string]string)
		}
		spec.Env[key] = value
	}
	if timeout < 0 {
		return nil, errors.New("--timeout must not be negative")
	}
	spec.TimeoutSeconds = int((timeout + time.Second - 1) / time.Second)

	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

// jobExit maps the session outcome onto the process exit status: the job's
// own status when it ran, ExitRejected when the orchestrator refused it and
// ExitFailure otherwise.
func jobExit(result domain.JobResult, err error) error {
	var rejected *connection.RejectedError
	switch {
	case errors.As(err, &rejected):
		return cli.Exit(rejected.Error(), ExitRejected)
	case err != nil:
		return cli.Exit(err.Error(), ExitFailure)
	}

	switch result.Reason {
	case domain.ReasonNone, domain.ReasonExitStatus:
		if result.ExitCode == 0 {
			return nil
		}
		if result.ExitCode > 0 {
			return cli.Exit("", result.ExitCode)
		}
	}
	// A job ended by the service fails the command whatever status the
	// workload had when it died.
	return cli.Exit("job ended: "+describeResult(result), ExitFailure)
}

func describeResult(r domain.JobResult) string {
	var b strings.Builder
	if r.ExitCode >= 0 {
		fmt.Fprintf(&b, "exit %d", r.ExitCode)
	} else {
		b.WriteString("no exit status")
	}
	if r.Reason != domain.ReasonNone && r.Reason != domain.ReasonExitStatus {
		fmt.Fprintf(&b, " (%s)", r.Reason)
	}
	if r.Duration > 0 {
		fmt.Fprintf(&b, " after %s", r.Duration.Round(time.Millisecond))
	}
	return b.String()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
