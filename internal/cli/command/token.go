package command

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/ussal-go/pkg/token"
)

// TokenCommand returns the token subcommand group.
func TokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Auth token utilities",
		Subcommands: []*cli.Command{
			{
				Name:  "generate",
				Usage: "Generate new auth tokens",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "count",
						Aliases: []string{"n"},
						Usage:   "number of tokens to generate",
						Value:   1,
					},
					&cli.BoolFlag{
						Name:  "with-hash",
						Usage: "also print the auth.token_hashes entry for each token",
					},
				},
				Action: tokenGenerate,
			},
			{
				Name:      "hash",
				Usage:     "Print the auth.token_hashes entry for a token",
				ArgsUsage: "[TOKEN]  (read from stdin when omitted)",
				Action:    tokenHash,
			},
		},
	}
}

func tokenGenerate(c *cli.Context) error {
	n := c.Int("count")
	if n < 1 {
		return errors.New("--count must be at least 1")
	}
	w := stdout(c)
	for i := 0; i < n; i++ {
		tok, err := token.GenerateAuthToken()
		if err != nil {
			return fmt.Errorf("generate token: %w", err)
		}
		if c.Bool("with-hash") {
			fmt.Fprintf(w, "%s  %s%s\n", tok, token.HashPrefix, token.Hash(tok))
			continue
		}
		fmt.Fprintln(w, tok)
	}
	return nil
}

func tokenHash(c *cli.Context) error {
	tok := c.Args().First()
	if tok == "" {
		in := c.App.Reader
		if in == nil {
			return errors.New("token required")
		}
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && line == "" {
			return errors.New("token required")
		}
		tok = strings.TrimSpace(line)
	}
	if tok == "" {
		return errors.New("token required")
	}
	fmt.Fprintf(stdout(c), "%s%s\n", token.HashPrefix, token.Hash(tok))
	return nil
}
