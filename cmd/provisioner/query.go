package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"provisioner/internal/config"
	"provisioner/internal/provision"
	"provisioner/internal/tarefa"
)

func (c *cli) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list [YYYY-MM]",
		Aliases: []string{"ls"},
		Short:   "List a month's subtasks (default: current month)",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(cmd, func(ctx context.Context, cfg *config.Config, svc *provision.Service) error {
				p := tarefa.PeriodOf(c.projectOf(cfg), svc.Today())
				if len(args) == 1 {
					parsed, err := tarefa.ParsePeriod(args[0])
					if err != nil {
						return err
					}
					if parsed.Project == "" {
						parsed.Project = p.Project
					}
					p = parsed
				}
				recs, err := svc.ListPeriod(ctx, p)
				if err != nil {
					return err
				}
				printRecords(cmd.OutOrStdout(), p, recs)
				return nil
			})
		},
	}
}

func (c *cli) periodsCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "periods",
		Short: "List months that have records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withService(cmd, func(ctx context.Context, cfg *config.Config, svc *provision.Service) error {
				var (
					ps  []tarefa.Period
					err error
				)
				if all {
					ps, err = svc.AllPeriods(ctx)
				} else {
					ps, err = svc.ListPeriods(ctx, c.projectOf(cfg))
				}
				if err != nil {
					return err
				}
				for _, p := range ps {
					fmt.Fprintln(cmd.OutOrStdout(), p)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include every project")
	return cmd
}

func (c *cli) nextIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "next-id",
		Short: "Print the id the next registration would get",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withService(cmd, func(ctx context.Context, cfg *config.Config, svc *provision.Service) error {
				id, err := svc.NextID(ctx, c.projectOf(cfg))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
}

func (c *cli) holidaysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "holidays [year]",
		Short: "List the configured holidays of a year",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			hs, err := cfg.HolidaySet()
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			year := nowIn(loc).Year()
			if len(args) == 1 {
				if year, err = strconv.Atoi(args[0]); err != nil {
					return fmt.Errorf("invalid year %q", args[0])
				}
			}
			printHolidays(cmd.OutOrStdout(), hs.List(year))
			return nil
		},
	}
}

func (c *cli) logCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent register and edit operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withService(cmd, func(ctx context.Context, _ *config.Config, svc *provision.Service) error {
				entries, err := svc.RecentLog(ctx, n)
				if err != nil {
					return err
				}
				printAudit(cmd.OutOrStdout(), entries)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&n, "n", "n", 20, "number of entries (0 for all)")
	return cmd
}
