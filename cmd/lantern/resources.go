package main

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/lantern-c2/lantern/internal/client"
	"github.com/lantern-c2/lantern/internal/output"
)

func newSessionsCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions",
		Long: `List interactive sessions known to the server. Only live sessions are
shown unless --all is set.`,
		Example: `  lantern sessions
  lantern sessions --all --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			env, err := loadServerEnv()
			if err != nil {
				return err
			}

			sessions, err := env.apiClient().ListSessions(cmd.Context())
			if err != nil {
				return apiError(err)
			}

			if !all {
				live := sessions[:0]
				for _, s := range sessions {
					if s.Alive {
						live = append(live, s)
					}
				}

				sessions = live
			}

			if out.JSON {
				return out.PrintJSON(sessions)
			}

			if len(sessions) == 0 {
				out.Muted("No sessions found.")
				return nil
			}

			out.Table(sessionHeaders, sessionRows(sessions, time.Now()))

			return nil
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include dead sessions")

	return cmd
}

var sessionHeaders = []string{"ID", "USER@HOST", "OS/ARCH", "REMOTE", "ALIVE", "LAST SEEN"}

func sessionRows(sessions []client.Session, now time.Time) [][]string {
	rows := make([][]string, 0, len(sessions))

	for _, s := range sessions {
		lastSeen := "-"
		if s.LastCheckin != nil {
			lastSeen = since(now, *s.LastCheckin)
		}

		rows = append(rows, []string{
			s.ID,
			s.Username + "@" + s.Hostname,
			s.OS + "/" + s.Arch,
			s.RemoteAddr,
			yesNo(s.Alive),
			lastSeen,
		})
	}

	return rows
}

func newOperatorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "operators",
		Short: "List operators",
		Long:  `List the operator accounts on the server and whether they are online.`,
		Example: `  lantern operators
  lantern operators --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			env, err := loadServerEnv()
			if err != nil {
				return err
			}

			operators, err := env.apiClient().ListOperators(cmd.Context())
			if err != nil {
				return apiError(err)
			}

			if out.JSON {
				return out.PrintJSON(operators)
			}

			if len(operators) == 0 {
				out.Muted("No operators found.")
				return nil
			}

			out.Table([]string{"NAME", "ROLE", "ONLINE", "LAST SEEN"}, operatorRows(operators, time.Now()))

			return nil
		},
	}
}

func operatorRows(operators []client.Operator, now time.Time) [][]string {
	rows := make([][]string, 0, len(operators))

	for _, op := range operators {
		lastSeen := "-"
		if op.LastSeen != nil {
			lastSeen = since(now, *op.LastSeen)
		}

		rows = append(rows, []string{op.Name, op.Role, yesNo(op.Online), lastSeen})
	}

	return rows
}

func newLicensesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "licenses",
		Short: "Show installed licenses",
		Long:  `Show the licenses installed on the server, their seats, and expiry.`,
		Example: `  lantern licenses
  lantern licenses --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			env, err := loadServerEnv()
			if err != nil {
				return err
			}

			licenses, err := env.apiClient().Licenses(cmd.Context())
			if err != nil {
				return apiError(err)
			}

			if out.JSON {
				return out.PrintJSON(licenses)
			}

			if len(licenses) == 0 {
				out.Muted("No licenses installed.")
				return nil
			}

			now := time.Now()
			out.Table([]string{"PRODUCT", "LICENSEE", "TIER", "SEATS", "STATUS", "EXPIRES"}, licenseRows(licenses, now))

			for _, l := range licenses {
				if l.Expired(now) {
					out.Warning("License %s for %s has expired", l.ID, l.Product)
				}
			}

			return nil
		},
	}
}

func licenseRows(licenses []client.License, now time.Time) [][]string {
	rows := make([][]string, 0, len(licenses))

	for _, l := range licenses {
		expires := "never"
		if l.ExpiresAt != nil {
			expires = l.ExpiresAt.UTC().Format(time.DateOnly)
		}

		status := l.Status
		if l.Expired(now) {
			status = "expired"
		}

		rows = append(rows, []string{l.Product, l.Licensee, l.Tier, strconv.Itoa(l.Seats), status, expires})
	}

	return rows
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}

	return "no"
}

// since renders how long ago t was, at a coarse resolution.
func since(now, t time.Time) string {
	d := now.Sub(t)

	switch {
	case d < 0:
		return "just now"
	case d < time.Minute:
		return strconv.Itoa(int(d.Seconds())) + "s ago"
	case d < time.Hour:
		return strconv.Itoa(int(d.Minutes())) + "m ago"
	case d < 48*time.Hour:
		return strconv.Itoa(int(d.Hours())) + "h ago"
	default:
		return strconv.Itoa(int(d.Hours()/24)) + "d ago"
	}
}
