package command

import (
	"crypto/tls"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/ussal-go/internal/cli/config"
	"github.com/yndnr/ussal-go/internal/cli/output"
	"github.com/yndnr/ussal-go/internal/infra/buildinfo"
	"github.com/yndnr/ussal-go/internal/infra/tlsroots"
)

// Exit codes used when the job itself produced no status.
const (
	ExitFailure  = 1
	ExitRejected = 2
)

// App creates the CLI application.
func App() *cli.App {
	info := buildinfo.Get()
	return &cli.App{
		Name:    "ussal-cli",
		Usage:   "Submit benchmark jobs to a ussal orchestrator",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", info.Version, info.Commit, info.BuildTime),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			RunCommand(),
			StatusCommand(),
			TokenCommand(),
			ProfileCommand(),
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "CLI profile file",
			EnvVars: []string{"USSAL_CLI_CONFIG"},
			Value:   config.DefaultConfigPath(),
		},
		&cli.StringFlag{
			Name:    "profile",
			Aliases: []string{"p"},
			Usage:   "profile to use instead of current_profile",
			EnvVars: []string{"USSAL_PROFILE"},
		},
		&cli.StringFlag{
			Name:    "address",
			Aliases: []string{"a"},
			Usage:   "orchestrator address (host[:port] or URL)",
			EnvVars: []string{"USSAL_ADDRESS"},
			Value:   "localhost",
		},
		&cli.StringFlag{
			Name:    "ca-file",
			Usage:   "PEM file or directory of extra trusted CA certificates",
			EnvVars: []string{"USSAL_CA_FILE"},
		},
		&cli.StringFlag{
			Name:  "server-name",
			Usage: "override the name verified against the server certificate",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   "table",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Enable verbose output",
		},
	}
}

// GlobalFlags defines flags available to all commands.
type GlobalFlags struct {
	Address    string
	CAFile     string
	ServerName string

	// AuthToken comes only from the profile; run has its own flag.
	AuthToken string

	Output string
	Wide   bool

	Verbose bool
}

// ParseGlobalFlags extracts global flags from context. Values not given as
// flags or environment variables are taken from the selected profile.
func ParseGlobalFlags(c *cli.Context) (*GlobalFlags, error) {
	flags := &GlobalFlags{
		Address:    c.String("address"),
		CAFile:     c.String("ca-file"),
		ServerName: c.String("server-name"),
		Output:     c.String("output"),
		Wide:       c.Bool("wide"),
		Verbose:    c.Bool("verbose"),
	}

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	profile, err := cfg.Profile(c.String("profile"))
	if err != nil {
		return nil, err
	}

	if !c.IsSet("address") && profile.Address != "" {
		flags.Address = profile.Address
	}
	if !c.IsSet("ca-file") {
		flags.CAFile = profile.CAFile
	}
	if !c.IsSet("server-name") {
		flags.ServerName = profile.ServerName
	}
	if !c.IsSet("output") && cfg.Output != "" {
		flags.Output = cfg.Output
	}
	flags.AuthToken = profile.AuthToken
	return flags, nil
}

// TLSConfig returns the client TLS configuration. It is nil, meaning system
// roots, unless a CA file or server name was given.
func (f *GlobalFlags) TLSConfig() (*tls.Config, error) {
	if f.CAFile == "" && f.ServerName == "" {
		return nil, nil
	}
	pool, err := tlsroots.Load(f.CAFile)
	if err != nil {
		return nil, err
	}
	if f.CAFile != "" && pool.Added() == 0 {
		return nil, fmt.Errorf("ca file %s holds no certificates", f.CAFile)
	}
	return pool.ClientConfig(f.ServerName), nil
}

// Formatter returns the formatter selected by --output.
func (f *GlobalFlags) Formatter() (output.Formatter, output.Format, error) {
	format, err := output.ParseFormat(f.Output)
	if err != nil {
		return nil, "", err
	}
	return output.NewFormatter(format, f.Wide), format, nil
}

// stdout and stderr return the app writers so tests can capture output.
func stdout(c *cli.Context) io.Writer {
	if c.App != nil && c.App.Writer != nil {
		return c.App.Writer
	}
	return os.Stdout
}

func stderr(c *cli.Context) io.Writer {
	if c.App != nil && c.App.ErrWriter != nil {
		return c.App.ErrWriter
	}
	return os.Stderr
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
