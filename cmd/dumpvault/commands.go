// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/dumpvault/internal/app"
	"github.com/tomtom215/dumpvault/internal/backup"
	"github.com/tomtom215/dumpvault/internal/schedule"
	"github.com/tomtom215/dumpvault/internal/store"
	"github.com/tomtom215/dumpvault/internal/validation"
)

const triggerCLI = "cli"

// buildFunc wires the components. deliver requests delivery channels.
type buildFunc func(ctx context.Context, deliver bool) (*app.Components, error)

type cli struct {
	out    io.Writer
	build  buildFunc
	now    func() time.Time
	asJSON bool
}

func (c *cli) rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "dumpvault",
		Short:         "Create, verify, restore and expire PostgreSQL backups",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVar(&c.asJSON, "json", false, "Print results as JSON")

	cmd.AddCommand(
		c.createCommand(),
		c.listCommand(),
		c.verifyCommand(),
		c.restoreCommand(),
		c.deliverCommand(),
		c.cleanupCommand(),
		c.previewCommand(),
		c.schedulesCommand(),
	)
	return cmd
}

// run builds the components, calls fn and releases them.
func (c *cli) run(cmd *cobra.Command, deliver bool, fn func(ctx context.Context, comp *app.Components) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	comp, err := c.build(ctx, deliver)
	if err != nil {
		return err
	}
	defer comp.Close()
	return fn(ctx, comp)
}

func (c *cli) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

func (c *cli) printJSON(v interface{}) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) createCommand() *cobra.Command {
	var (
		compress   bool
		noVerify   bool
		recipients []string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Dump the database and run the publish pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for i, r := range recipients {
				if err := validation.ValidateVar(fmt.Sprintf("to[%d]", i), r, "recipient"); err != nil {
					return err
				}
			}
			return c.run(cmd, len(recipients) > 0, func(ctx context.Context, comp *app.Components) error {
				if !cmd.Flags().Changed("compress") {
					compress = comp.Config.Compression.Enabled
				}
				res, err := comp.Orchestrator.CreateAndPublish(ctx, backup.PublishOptions{
					Compress:   compress,
					Verify:     !noVerify,
					Recipients: recipients,
					Trigger:    triggerCLI,
				})
				if res != nil {
					if c.asJSON {
						if jerr := c.printJSON(res); jerr != nil {
							return jerr
						}
					} else {
						c.printStages(res)
					}
				}
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&compress, "compress", false, "Gzip the dump (defaults to compression.enabled)")
	cmd.Flags().BoolVar(&noVerify, "no-verify", false, "Skip pg_restore --list verification")
	cmd.Flags().StringSliceVar(&recipients, "to", nil, "Deliver to these recipients (email, https:// or s3://)")
	return cmd
}

func (c *cli) printStages(res *backup.PublishResult) {
	for _, s := range res.Stages {
		line := fmt.Sprintf("%-9s %-8s %6dms", s.Stage, s.Status, s.DurationMS)
		if s.Error != "" {
			line += "  " + s.Error
		}
		fmt.Fprintln(c.out, line)
	}
	if res.Artifact != nil {
		fmt.Fprintf(c.out, "artifact: %s (%s)\n", res.Artifact.Filename, humanBytes(res.Artifact.SizeBytes))
	}
}

func (c *cli) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backup artifacts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, false, func(ctx context.Context, comp *app.Components) error {
				artifacts, err := comp.Orchestrator.List(ctx)
				if err != nil {
					return err
				}
				if c.asJSON {
					if artifacts == nil {
						artifacts = []*store.Artifact{}
					}
					return c.printJSON(artifacts)
				}
				c.printArtifacts(artifacts)
				return nil
			})
		},
	}
}

func (c *cli) printArtifacts(artifacts []*store.Artifact) {
	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILENAME\tSIZE\tCREATED\tVERIFIED")
	for _, a := range artifacts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.Filename, humanBytes(a.SizeBytes), a.CreatedAt.UTC().Format(time.RFC3339), a.Verified)
	}
	_ = tw.Flush()
}

func (c *cli) verifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify FILE",
		Short: "Check that an artifact is a readable pg_dump archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, false, func(ctx context.Context, comp *app.Components) error {
				a, err := comp.Orchestrator.Get(ctx, args[0])
				if err != nil {
					return err
				}
				res, err := comp.Orchestrator.Verify(ctx, a)
				if err != nil {
					return err
				}
				if c.asJSON {
					return c.printJSON(res)
				}
				fmt.Fprintf(c.out, "%s: %s (%d entries, sha256 %s)\n", a.Filename, res.Status, res.Entries, res.SHA256)
				if !res.Valid() {
					return &backup.InvalidBackupError{Filename: a.Filename, Message: res.Message}
				}
				return nil
			})
		},
	}
}

func (c *cli) restoreCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "restore FILE",
		Short: "Restore the database from a verified artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("restore overwrites the database; pass --yes to confirm")
			}
			return c.run(cmd, false, func(ctx context.Context, comp *app.Components) error {
				a, err := comp.Orchestrator.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if a.Verified == store.VerifyUnknown {
					if _, err := comp.Orchestrator.Verify(ctx, a); err != nil {
						return err
					}
				}
				if err := comp.Orchestrator.RestoreFrom(ctx, a); err != nil {
					return err
				}
				fmt.Fprintf(c.out, "restored from %s\n", a.Filename)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the restore")
	return cmd
}

func (c *cli) deliverCommand() *cobra.Command {
	var recipients []string
	cmd := &cobra.Command{
		Use:   "deliver FILE",
		Short: "Send an existing artifact to recipients",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, true, func(ctx context.Context, comp *app.Components) error {
				if len(recipients) == 0 {
					recipients = comp.Config.Delivery.DefaultRecipients
				}
				a, err := comp.Orchestrator.Get(ctx, args[0])
				if err != nil {
					return err
				}
				report, err := comp.Orchestrator.Deliver(ctx, a, recipients)
				if report != nil {
					if c.asJSON {
						if jerr := c.printJSON(report); jerr != nil {
							return jerr
						}
					} else {
						for _, r := range report.Results {
							status := "ok"
							if !r.Success {
								status = r.ErrorCode + ": " + r.ErrorMessage
							}
							fmt.Fprintf(c.out, "%-40s %-8s %s\n", r.Recipient, r.Channel, status)
						}
					}
				}
				return err
			})
		},
	}
	cmd.Flags().StringSliceVar(&recipients, "to", nil, "Recipients (defaults to delivery.default_recipients)")
	return cmd
}

// maxAgeFlag resolves --max-age against the configured default.
func maxAgeFlag(cmd *cobra.Command, v int, comp *app.Components) (int, error) {
	if !cmd.Flags().Changed("max-age") {
		return comp.Orchestrator.DefaultMaxAgeDays(), nil
	}
	if err := validation.ValidateVar("max-age", v, "min=0,max=36500"); err != nil {
		return 0, err
	}
	return v, nil
}

func (c *cli) cleanupCommand() *cobra.Command {
	var maxAge int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete artifacts older than the retention age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, false, func(ctx context.Context, comp *app.Components) error {
				days, err := maxAgeFlag(cmd, maxAge, comp)
				if err != nil {
					return err
				}
				res, err := comp.Orchestrator.Cleanup(ctx, days)
				if err != nil {
					return err
				}
				if c.asJSON {
					return c.printJSON(res)
				}
				for _, name := range res.Deleted {
					fmt.Fprintf(c.out, "deleted %s\n", name)
				}
				for _, f := range res.Failed {
					fmt.Fprintf(c.out, "failed  %s: %s\n", f.Filename, f.Error)
				}
				fmt.Fprintf(c.out, "removed %d artifact(s), freed %s\n", res.Removed, humanBytes(res.FreedBytes))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&maxAge, "max-age", 0, "Age limit in days (defaults to retention.max_age_days)")
	return cmd
}

func (c *cli) previewCommand() *cobra.Command {
	var maxAge int
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show what cleanup would delete without deleting anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, false, func(ctx context.Context, comp *app.Components) error {
				days, err := maxAgeFlag(cmd, maxAge, comp)
				if err != nil {
					return err
				}
				p, err := comp.Orchestrator.RetentionPreview(ctx, days)
				if err != nil {
					return err
				}
				if c.asJSON {
					return c.printJSON(p)
				}
				fmt.Fprintf(c.out, "cutoff %s (%d days)\n", p.Cutoff.UTC().Format(time.RFC3339), p.MaxAgeDays)
				for _, a := range p.WouldDelete {
					fmt.Fprintf(c.out, "delete  %s\n", a.Filename)
				}
				if p.Protected != "" {
					fmt.Fprintf(c.out, "protect %s\n", p.Protected)
				}
				fmt.Fprintf(c.out, "would delete %d, keep %d, reclaim %s\n", p.DeleteCount, p.KeepCount, humanBytes(p.ReclaimedBytes))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&maxAge, "max-age", 0, "Age limit in days (defaults to retention.max_age_days)")
	return cmd
}

func (c *cli) schedulesCommand() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "schedules",
		Short: "Print the next fire times of every configured schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if count < 1 || count > 100 {
				return fmt.Errorf("--count must be between 1 and 100, got %d", count)
			}
			return c.run(cmd, false, func(_ context.Context, comp *app.Components) error {
				schedCfg, err := schedule.LoadConfig(comp.Config)
				if err != nil {
					return err
				}
				sched, err := schedule.New(comp.Orchestrator, schedCfg)
				if err != nil {
					return err
				}
				preview := sched.Preview(c.clock(), count)
				if c.asJSON {
					return c.printJSON(preview)
				}
				names := make([]string, 0, len(preview))
				for name := range preview {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					fmt.Fprintln(c.out, name)
					for _, t := range preview[name] {
						fmt.Fprintf(c.out, "  %s\n", t.Format(time.RFC3339))
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&count, "count", 5, "Fire times per schedule")
	return cmd
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
