package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"strings"
	"time"

	"github.com/yndnr/ussal-go/internal/core/domain"
)

// preflightTimeout bounds the sudo probe.
const preflightTimeout = 10 * time.Second

// LookupIdentity resolves an OS account by name.
func LookupIdentity(name string) (domain.Identity, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return domain.Identity{}, err
	}
	return identityFromUser(u)
}

// CurrentIdentity resolves the account the service runs as.
func CurrentIdentity() (domain.Identity, error) {
	u, err := user.Current()
	if err != nil {
		return domain.Identity{}, err
	}
	return identityFromUser(u)
}

func identityFromUser(u *user.User) (domain.Identity, error) {
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("user %s: non-numeric uid %q", u.Username, u.Uid)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("user %s: non-numeric gid %q", u.Username, u.Gid)
	}
	return domain.Identity{Name: u.Username, UID: uid, GID: gid, HomeDir: u.HomeDir}, nil
}

// ResolveRule builds the delegation rule from the running identity and the
// configured sandbox account name.
func ResolveRule(sandboxName string) (domain.DelegationRule, error) {
	service, err := CurrentIdentity()
	if err != nil {
		return domain.DelegationRule{}, domain.ErrPrivilegeUnavailable.WithDetails("resolve service identity").WithCause(err)
	}
	if sandboxName == "" {
		return domain.DelegationRule{}, domain.ErrPrivilegeUnavailable.WithDetails("sandbox user not configured")
	}
	sandbox, err := LookupIdentity(sandboxName)
	if err != nil {
		return domain.DelegationRule{}, domain.ErrPrivilegeUnavailable.WithDetails(fmt.Sprintf("sandbox user %q", sandboxName)).WithCause(err)
	}

	rule := domain.DelegationRule{Service: service, Sandbox: sandbox}
	if err := rule.Validate(); err != nil {
		return domain.DelegationRule{}, err
	}
	return rule, nil
}

// Preflight verifies that the delegation actually works: the sandbox has a
// home directory and `sudo -n -u <sandbox> -- true` succeeds without a
// prompt. Any failure means jobs must not run.
func Preflight(ctx context.Context, s *SudoSpawner) error {
	rule := s.Rule()
	if err := rule.Validate(); err != nil {
		return err
	}
	if rule.Sandbox.HomeDir == "" {
		return domain.ErrPrivilegeUnavailable.WithDetails(fmt.Sprintf("sandbox user %q has no home directory", rule.Sandbox.Name))
	}
	if _, err := os.Stat(rule.Sandbox.HomeDir); err != nil && !os.IsPermission(err) {
		return domain.ErrPrivilegeUnavailable.WithDetails("sandbox home directory").WithCause(err)
	}

	ctx, cancel := context.WithTimeout(ctx, preflightTimeout)
	defer cancel()

	c := exec.CommandContext(ctx, s.sudoPath, "-n", "-u", rule.Sandbox.Name, "--", "true")
	c.Env = []string{"PATH=" + DefaultPath}
	out, err := c.CombinedOutput()
	if err != nil {
		return domain.ErrPrivilegeUnavailable.
			WithDetails(fmt.Sprintf("sudo -n -u %s: %s", rule.Sandbox.Name, strings.TrimSpace(string(out)))).
			WithCause(err)
	}
	return nil
}
