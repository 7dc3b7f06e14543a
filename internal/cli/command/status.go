package command

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/ussal-go/internal/cli/connection"
	"github.com/yndnr/ussal-go/internal/cli/output"
	"github.com/yndnr/ussal-go/internal/server/httpserver/handler"
)

// StatusCommand returns the status command.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show orchestrator status",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "request-timeout",
				Usage: "HTTP request timeout",
				Value: 10 * time.Second,
			},
		},
		Action: showStatus,
	}
}

func showStatus(c *cli.Context) error {
	flags, err := ParseGlobalFlags(c)
	if err != nil {
		return err
	}
	formatter, format, err := flags.Formatter()
	if err != nil {
		return err
	}
	tlsConfig, err := flags.TLSConfig()
	if err != nil {
		return err
	}
	client, err := connection.NewHTTPClient(flags.Address, tlsConfig)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("request-timeout"))
	defer cancel()

	st, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("status %s: %w", client.BaseURL(), err)
	}

	w := stdout(c)
	if format != output.FormatTable {
		return formatter.Format(w, st)
	}
	return renderStatus(w, st, flags.Wide)
}

// renderStatus prints the summary table followed by the live sessions.
func renderStatus(w io.Writer, st *handler.StatusResponse, wide bool) error {
	var summary output.Table
	summary.SetHeaders("FIELD", "VALUE")
	summary.AddRow("version", st.Build.Version)
	if wide {
		summary.AddRow("commit", st.Build.Commit)
		summary.AddRow("platform", st.Build.Platform)
	}
	summary.AddRow("mode", st.Mode)
	summary.AddRow("uptime", (time.Duration(st.UptimeSeconds) * time.Second).String())
	summary.AddRow("sessions", fmt.Sprintf("%d/%d", st.Sessions.Active, st.Sessions.Max))

	if ex := st.Executor; ex != nil {
		state := "available"
		if !ex.Available {
			state = "unavailable"
			if ex.Error != "" {
				state += ": " + ex.Error
			}
		}
		summary.AddRow("executor", fmt.Sprintf("%d/%d running, %s", ex.Running, ex.Capacity, state))
	}

	if cert := st.Certificate; cert != nil {
		line := cert.Phase.String()
		if !cert.NotAfter.IsZero() {
			line += ", expires " + cert.NotAfter.Format("2006-01-02 15:04 MST")
		}
		summary.AddRow("certificate", line)
		if wide {
			summary.AddRow("issuer", cert.Issuer)
			summary.AddRow("domains", strings.Join(cert.Domains, ","))
		}
		if cert.LastError != "" {
			summary.AddRow("last_error", cert.LastError)
		}
	}

	if err := summary.Render(w); err != nil {
		return err
	}
	if len(st.Sessions.Live) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	return (&output.TableFormatter{Wide: wide}).Format(w, st.Sessions.Live)
}
