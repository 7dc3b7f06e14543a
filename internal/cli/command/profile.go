package command

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/ussal-go/internal/cli/config"
	"github.com/yndnr/ussal-go/internal/cli/output"
)

// ProfileCommand returns the profile subcommand group.
func ProfileCommand() *cli.Command {
	return &cli.Command{
		Name:  "profile",
		Usage: "Manage saved orchestrator profiles",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List saved profiles",
				Action: profileList,
			},
			{
				Name:      "set",
				Usage:     "Create or update a profile",
				ArgsUsage: "NAME",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "address", Usage: "orchestrator address"},
					&cli.StringFlag{Name: "ca-file", Usage: "PEM file or directory of extra trusted CA certificates"},
					&cli.StringFlag{Name: "server-name", Usage: "name verified against the server certificate"},
					&cli.StringFlag{Name: "auth-token", Usage: "auth token presented by run"},
					&cli.BoolFlag{Name: "use", Usage: "also make it the current profile"},
				},
				Action: profileSet,
			},
			{
				Name:      "use",
				Usage:     "Select the current profile",
				ArgsUsage: "NAME",
				Action:    profileUse,
			},
			{
				Name:      "delete",
				Usage:     "Delete a profile",
				ArgsUsage: "NAME",
				Action:    profileDelete,
			},
		},
	}
}

// profileArg returns the single NAME argument.
func profileArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 || c.Args().First() == "" {
		return "", errors.New("profile name required")
	}
	return c.Args().First(), nil
}

func profileList(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	var t output.Table
	t.SetHeaders("CURRENT", "NAME", "ADDRESS", "CA_FILE", "TOKEN")
	for _, name := range cfg.Names() {
		p := cfg.Profiles[name]
		current, tok := "", "-"
		if name == cfg.CurrentProfile {
			current = "*"
		}
		if p.AuthToken != "" {
			tok = "set"
		}
		t.AddRow(current, name, p.Address, p.CAFile, tok)
	}
	return t.Render(stdout(c))
}

func profileSet(c *cli.Context) error {
	name, err := profileArg(c)
	if err != nil {
		return err
	}
	path := c.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	p := cfg.Profiles[name]
	if c.IsSet("address") {
		p.Address = c.String("address")
	}
	if c.IsSet("ca-file") {
		p.CAFile = c.String("ca-file")
	}
	if c.IsSet("server-name") {
		p.ServerName = c.String("server-name")
	}
	if c.IsSet("auth-token") {
		p.AuthToken = c.String("auth-token")
	}
	cfg.Profiles[name] = p
	if c.Bool("use") || cfg.CurrentProfile == "" {
		cfg.CurrentProfile = name
	}

	if err := config.Save(cfg, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	fmt.Fprintf(stdout(c), "profile %q saved\n", name)
	return nil
}

func profileUse(c *cli.Context) error {
	name, err := profileArg(c)
	if err != nil {
		return err
	}
	path := c.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if _, ok := cfg.Profiles[name]; !ok {
		return fmt.Errorf("profile %q not found", name)
	}
	cfg.CurrentProfile = name
	return config.Save(cfg, path)
}

func profileDelete(c *cli.Context) error {
	name, err := profileArg(c)
	if err != nil {
		return err
	}
	path := c.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if _, ok := cfg.Profiles[name]; !ok {
		return fmt.Errorf("profile %q not found", name)
	}
	delete(cfg.Profiles, name)
	if cfg.CurrentProfile == name {
		cfg.CurrentProfile = ""
	}
	return config.Save(cfg, path)
}
