package provision

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os/user"
	"slices"
	"strings"
	"text/template"
)

// Default account and install locations.
const (
	DefaultServiceUser = "ussal-runner"
	DefaultSandboxUser = "ussal-sandbox"
	DefaultBinaryPath  = "/home/ussal-runner/ussal-server"
	DefaultUnitPath    = "/etc/systemd/system/ussal-server.service"
	DefaultSudoersPath = "/etc/sudoers.d/ussal"
)

// Contract is the set of postconditions the provisioning step establishes.
type Contract struct {
	// ServiceUser runs the orchestrator.
	ServiceUser string
	// SandboxUser runs workloads.
	SandboxUser string
	// BinaryPath is the installed server binary.
	BinaryPath string
	// Args are passed to the binary by the unit.
	Args []string
}

// DefaultContract returns the contract with default account names.
func DefaultContract() Contract {
	return Contract{
		ServiceUser: DefaultServiceUser,
		SandboxUser: DefaultSandboxUser,
		BinaryPath:  DefaultBinaryPath,
	}
}

// Validate checks the contract is self-consistent.
func (c Contract) Validate() error {
	switch {
	case c.ServiceUser == "":
		return errors.New("service user is required")
	case c.SandboxUser == "":
		return errors.New("sandbox user is required")
	case c.ServiceUser == c.SandboxUser:
		return fmt.Errorf("service and sandbox user must differ, both are %q", c.ServiceUser)
	case c.ServiceUser == "root" || c.SandboxUser == "root":
		return errors.New("neither account may be root")
	case !strings.HasPrefix(c.BinaryPath, "/"):
		return fmt.Errorf("binary path %q must be absolute", c.BinaryPath)
	}
	for _, name := range []string{c.ServiceUser, c.SandboxUser} {
		if strings.ContainsAny(name, " \t\n:,()=") {
			return fmt.Errorf("invalid account name %q", name)
		}
	}
	return nil
}

// SudoersRule returns the single delegation line. It allows the service
// account to run any command as the sandbox account without a password,
// and nothing else.
func (c Contract) SudoersRule() string {
	return fmt.Sprintf("%s ALL = (%s) NOPASSWD: ALL", c.ServiceUser, c.SandboxUser)
}

var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description=Ussal orchestrator and runner
After=network-online.target
Wants=network-online.target
StartLimitIntervalSec=0

[Service]
Type=simple
User={{.ServiceUser}}
AmbientCapabilities=CAP_NET_BIND_SERVICE
Restart=always
RestartSec=1
ExecStart={{.ExecStart}}

[Install]
WantedBy=multi-user.target
`))

// Unit renders the systemd unit.
func (c Contract) Unit() (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	err := unitTemplate.Execute(&buf, struct {
		ServiceUser string
		ExecStart   string
	}{
		ServiceUser: c.ServiceUser,
		ExecStart:   c.execStart(),
	})
	if err != nil {
		return "", fmt.Errorf("render unit: %w", err)
	}
	return buf.String(), nil
}

func (c Contract) execStart() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.BinaryPath)
	for _, a := range c.Args {
		parts = append(parts, quoteArg(a))
	}
	return strings.Join(parts, " ")
}

// quoteArg quotes an ExecStart argument when systemd would split it.
func quoteArg(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\"'\\$%;") {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `$$`, `%`, `%%`)
	return `"` + r.Replace(s) + `"`
}

// Render writes both artefacts with their install paths as headings.
func (c Contract) Render(w io.Writer) error {
	unit, err := c.Unit()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "# %s\n%s\n# %s\n%s\n", DefaultUnitPath, unit, DefaultSudoersPath, c.SudoersRule())
	return err
}

// LookupFunc resolves an account by name.
type LookupFunc func(name string) (*user.User, error)

// Verify checks the host satisfies the contract: both accounts exist, are
// distinct, neither is root, and the sandbox account has a home directory.
// The sudo rule itself is probed by the executor preflight.
func (c Contract) Verify(lookup LookupFunc) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if lookup == nil {
		lookup = user.Lookup
	}
	svc, err := lookup(c.ServiceUser)
	if err != nil {
		return fmt.Errorf("service user %q: %w", c.ServiceUser, err)
	}
	sandbox, err := lookup(c.SandboxUser)
	if err != nil {
		return fmt.Errorf("sandbox user %q: %w", c.SandboxUser, err)
	}
	if svc.Uid == "0" || sandbox.Uid == "0" {
		return errors.New("neither account may have uid 0")
	}
	if svc.Uid == sandbox.Uid {
		return fmt.Errorf("service and sandbox user share uid %s", svc.Uid)
	}
	if sandbox.HomeDir == "" {
		return fmt.Errorf("sandbox user %q has no home directory", c.SandboxUser)
	}
	return nil
}

// HasSudoersRule reports whether sudoers content contains the delegation
// line, ignoring comments and whitespace differences.
func (c Contract) HasSudoersRule(content string) bool {
	want := strings.Fields(c.SudoersRule())
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if slices.Equal(strings.Fields(line), want) {
			return true
		}
	}
	return false
}

