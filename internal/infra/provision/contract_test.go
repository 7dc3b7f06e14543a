package provision

import (
	"bytes"
	"errors"
	"os/user"
	"strings"
	"testing"
)

func TestContract_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Contract)
		wantErr bool
	}{
		{"default", func(*Contract) {}, false},
		{"missing service", func(c *Contract) { c.ServiceUser = "" }, true},
		{"missing sandbox", func(c *Contract) { c.SandboxUser = "" }, true},
		{"same account", func(c *Contract) { c.SandboxUser = c.ServiceUser }, true},
		{"root sandbox", func(c *Contract) { c.SandboxUser = "root" }, true},
		{"relative binary", func(c *Contract) { c.BinaryPath = "ussal-server" }, true},
		{"bad name", func(c *Contract) { c.SandboxUser = "a (b)" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultContract()
			tt.mutate(&c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestContract_SudoersRule(t *testing.T) {
	c := DefaultContract()
	want := "ussal-runner ALL = (ussal-sandbox) NOPASSWD: ALL"
	if got := c.SudoersRule(); got != want {
		t.Errorf("SudoersRule() = %q, want %q", got, want)
	}
}

func TestContract_Unit(t *testing.T) {
	c := DefaultContract()
	c.Args = []string{"-mode", "orchestrator-and-runner", "-tls.domains", "bench.example.com"}

	unit, err := c.Unit()
	if err != nil {
		t.Fatalf("Unit() error = %v", err)
	}
	for _, want := range []string{
		"User=ussal-runner",
		"AmbientCapabilities=CAP_NET_BIND_SERVICE",
		"Restart=always",
		"ExecStart=/home/ussal-runner/ussal-server -mode orchestrator-and-runner -tls.domains bench.example.com",
		"WantedBy=multi-user.target",
	} {
		if !strings.Contains(unit, want) {
			t.Errorf("unit missing %q:\n%s", want, unit)
		}
	}
}

func TestContract_UnitQuotesArgs(t *testing.T) {
	c := DefaultContract()
	c.Args = []string{"-acme.email", "ops team@example.com", "50%"}

	unit, err := c.Unit()
	if err != nil {
		t.Fatalf("Unit() error = %v", err)
	}
	if !strings.Contains(unit, `"ops team@example.com" "50%%"`) {
		t.Errorf("arguments not quoted:\n%s", unit)
	}
}

func TestContract_Render(t *testing.T) {
	var buf bytes.Buffer
	if err := DefaultContract().Render(&buf); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "# "+DefaultUnitPath) || !strings.Contains(out, "# "+DefaultSudoersPath) {
		t.Errorf("Render() missing install paths:\n%s", out)
	}

	bad := DefaultContract()
	bad.SandboxUser = bad.ServiceUser
	if err := bad.Render(&buf); err == nil {
		t.Error("Render() expected error for invalid contract")
	}
}

func fakeLookup(users map[string]*user.User) LookupFunc {
	return func(name string) (*user.User, error) {
		if u, ok := users[name]; ok {
			return u, nil
		}
		return nil, user.UnknownUserError(name)
	}
}

func TestContract_Verify(t *testing.T) {
	svc := &user.User{Username: "ussal-runner", Uid: "990", HomeDir: "/home/ussal-runner"}
	sandbox := &user.User{Username: "ussal-sandbox", Uid: "991", HomeDir: "/home/ussal-sandbox"}

	tests := []struct {
		name    string
		users   map[string]*user.User
		wantErr bool
	}{
		{"ok", map[string]*user.User{"ussal-runner": svc, "ussal-sandbox": sandbox}, false},
		{"missing sandbox", map[string]*user.User{"ussal-runner": svc}, true},
		{"missing service", map[string]*user.User{"ussal-sandbox": sandbox}, true},
		{"shared uid", map[string]*user.User{
			"ussal-runner":  svc,
			"ussal-sandbox": {Username: "ussal-sandbox", Uid: "990", HomeDir: "/x"},
		}, true},
		{"root uid", map[string]*user.User{
			"ussal-runner":  svc,
			"ussal-sandbox": {Username: "ussal-sandbox", Uid: "0", HomeDir: "/root"},
		}, true},
		{"no home", map[string]*user.User{
			"ussal-runner":  svc,
			"ussal-sandbox": {Username: "ussal-sandbox", Uid: "991"},
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := DefaultContract().Verify(fakeLookup(tt.users))
			if (err != nil) != tt.wantErr {
				t.Errorf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestContract_VerifyUnknownUser(t *testing.T) {
	err := DefaultContract().Verify(fakeLookup(nil))
	var unknown user.UnknownUserError
	if !errors.As(err, &unknown) {
		t.Errorf("Verify() error = %v, want UnknownUserError", err)
	}
}

func TestContract_HasSudoersRule(t *testing.T) {
	c := DefaultContract()
	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{"exact", "ussal-runner ALL = (ussal-sandbox) NOPASSWD: ALL\n", true},
		{"extra spaces", "root ALL=(ALL) ALL\n  ussal-runner   ALL = (ussal-sandbox)  NOPASSWD: ALL  \n", true},
		{"commented", "# ussal-runner ALL = (ussal-sandbox) NOPASSWD: ALL\n", false},
		{"wider grant", "ussal-runner ALL = (ALL) NOPASSWD: ALL\n", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.HasSudoersRule(tt.content); got != tt.want {
				t.Errorf("HasSudoersRule() = %v, want %v", got, tt.want)
			}
		})
	}
}
