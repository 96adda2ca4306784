package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/StricklySoft/contentflow/pkg/artifacts"
	"github.com/StricklySoft/contentflow/pkg/auth"
	sserr "github.com/StricklySoft/contentflow/pkg/errors"
	"github.com/StricklySoft/contentflow/pkg/models"
	"github.com/StricklySoft/contentflow/pkg/monitor"
	"github.com/StricklySoft/contentflow/pkg/orchestrator"
	"github.com/StricklySoft/contentflow/pkg/quota"
)

func (c *cli) newRunCmd() *cobra.Command {
	var (
		req     orchestrator.Request
		archive bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one workflow through every phase and print the result",
		Long: `Run one workflow through research, outline, draft and compliance and
print the result as JSON. The pipeline estimate is charged against today's
quota before any phase runs.

Examples:
  # Run a workflow
  contentflow run --topic "SBA Loans" --audience "small business owners" \
    --source https://www.sba.gov/funding-programs/loans

  # Skip archiving even when object storage is enabled
  contentflow run --topic "SBA Loans" --archive=false`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return c.withApp(ctx, func(a *app) error {
				var arch *artifacts.Archive
				if archive {
					var err error
					if arch, err = a.openArchive(ctx); err != nil {
						return err
					}
				}
				orch, err := a.buildOrchestrator(arch, nil, nil)
				if err != nil {
					return err
				}
				res, runErr := orch.Submit(ctx, req)
				if res != nil {
					if err := printJSON(cmd.OutOrStdout(), res); err != nil {
						return err
					}
				}
				return runErr
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Brief.Topic, "topic", "", "article topic (required)")
	f.StringVar(&req.Brief.Audience, "audience", "", "target audience")
	f.StringVar(&req.Brief.PrimaryKeyword, "keyword", "", "primary keyword; defaults to the topic")
	f.StringVar(&req.Brief.Goal, "goal", "", "what the article should achieve")
	f.StringVar(&req.Brief.Angle, "angle", "", "editorial angle")
	f.IntVar(&req.Brief.WordCount, "words", 0, "target word count")
	f.StringSliceVar(&req.Brief.Sources, "source", nil, "source URL the draft may cite; repeatable")
	f.BoolVar(&archive, "archive", true, "archive the final draft when object storage is enabled")
	_ = cmd.MarkFlagRequired("topic")
	return cmd
}

func (c *cli) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <workflow-id>",
		Short: "Print a workflow entry",
		Long: `Print a workflow entry as JSON, including whether it is stuck.

Examples:
  contentflow status 3f1c9a52-7d4e-4b8a-9a61-2f0f5b8c1d77`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withApp(ctx, func(a *app) error {
				entry, ok, err := a.workflows.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return sserr.NotFoundf("workflow %q not found", args[0])
				}
				return printJSON(cmd.OutOrStdout(), struct {
					*models.WorkflowEntry
					Stuck bool `json:"stuck"`
				}{entry, monitor.IsStuck(entry, c.cfg.Monitor.StuckThreshold, time.Now())})
			})
		},
	}
}

func (c *cli) newAlertsCmd() *cobra.Command {
	var (
		typ        string
		unnotified bool
	)
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List stored alerts",
		Long: `List stored alerts, newest first.

Examples:
  # Every alert
  contentflow alerts

  # Stuck workflows that were never delivered
  contentflow alerts --type workflow_stuck --unnotified`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if typ != "" && !models.AlertType(typ).Valid() {
				return sserr.Newf(sserr.CodeValidation, "unknown alert type %q", typ)
			}
			ctx := cmd.Context()
			return c.withApp(ctx, func(a *app) error {
				alerts, err := a.monitor.GetAlerts(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tTYPE\tSEVERITY\tNOTIFIED\tCREATED\tMESSAGE")
				for _, al := range alerts {
					if typ != "" && string(al.Type) != typ {
						continue
					}
					if unnotified && al.Notified {
						continue
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\n",
						al.ID, al.Type, al.Severity, al.Notified,
						al.Timestamp.Format(time.RFC3339), al.Message)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&typ, "type", "", "only alerts of this type")
	cmd.Flags().BoolVar(&unnotified, "unnotified", false, "only alerts not yet delivered")
	return cmd
}

func (c *cli) newQuotaCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Print quota usage for a day",
		Long: `Print quota usage for a UTC day as JSON. Defaults to today.

Examples:
  contentflow quota
  contentflow quota --date 2026-03-14`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if date != "" {
				if _, err := time.Parse(quota.DateLayout, date); err != nil {
					return sserr.Wrap(err, sserr.CodeValidationFormat, "date must be YYYY-MM-DD")
				}
			}
			ctx := cmd.Context()
			return c.withApp(ctx, func(a *app) error {
				if date == "" {
					date = a.ledger.Today()
				}
				used, err := a.ledger.Usage(ctx, date)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), quota.Snapshot{
					Date:      date,
					Used:      used,
					Limit:     a.ledger.Limit(),
					Remaining: max(a.ledger.Limit()-used, 0),
				})
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to report, YYYY-MM-DD (UTC)")
	return cmd
}

func (c *cli) newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Raise alerts for stuck workflows and retry undelivered alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return c.withApp(ctx, func(a *app) error {
				res, err := a.sweeper.Sweep(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}

func (c *cli) newTokenCmd() *cobra.Command {
	var (
		subject string
		roles   []string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin API bearer token",
		Long: `Issue an HS256 bearer token for the admin API, signed with the configured
CONTENTFLOW_API_JWT_SECRET.

Examples:
  contentflow token --subject ops@example.com --role operator --ttl 8h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			validator, err := auth.NewHMACValidator(auth.ValidatorConfig{
				SigningKey: c.cfg.API.JWTSecret,
				Issuer:     c.cfg.API.JWTIssuer,
				Audience:   c.cfg.API.JWTAudience,
			})
			if err != nil {
				return err
			}
			parsed := make([]auth.Role, 0, len(roles))
			for _, r := range roles {
				role := auth.Role(r)
				if !role.Valid() {
					return sserr.Newf(sserr.CodeValidation, "unknown role %q", r)
				}
				parsed = append(parsed, role)
			}
			token, err := validator.Issue(subject, parsed, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject (required)")
	cmd.Flags().StringSliceVar(&roles, "role", []string{string(auth.RoleViewer)}, "role to grant: viewer, operator or admin; repeatable")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
