package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sentini2/edusp/internal/db"
	"github.com/Sentini2/edusp/internal/license"
	"github.com/Sentini2/edusp/internal/logger"
	"github.com/Sentini2/edusp/internal/model"
	"github.com/Sentini2/edusp/internal/repository"
)

func licenseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "license",
		Short: "Manage agent license keys",
	}
	cmd.AddCommand(
		licenseIssueCmd(),
		licenseRevokeCmd(),
		licenseBanCmd(),
		licenseListCmd(),
	)
	return cmd
}

// withLicenses opens the configured database for the duration of fn.
func withLicenses(fn func(ctx context.Context, svc *license.Service) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer db.CloseDB()

	log := logger.New(os.Stderr, "warn", cfg.Logging.Format)
	svc := license.NewService(
		repository.NewLicenseRepository(database),
		license.Config{MaxHardware: cfg.License.MaxHardware},
		log,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return fn(ctx, svc)
}

func licenseIssueCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:       "issue <trial|monthly|yearly|lifetime>",
		Short:     "Issue new license keys",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"trial", "monthly", "yearly", "lifetime"},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := model.ParseLicenseKind(args[0])
			if err != nil {
				return err
			}
			return withLicenses(func(ctx context.Context, svc *license.Service) error {
				for i := 0; i < count; i++ {
					lic, err := svc.Issue(ctx, kind)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", lic.Key, lic.Kind, formatExpiry(lic.ExpiresAt))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of keys to issue")
	return cmd
}

func licenseRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key>",
		Short: "Delete a license and its hardware bindings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLicenses(func(ctx context.Context, svc *license.Service) error {
				if err := svc.Revoke(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
				return nil
			})
		},
	}
}

func licenseBanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ban <key>",
		Short: "Toggle the banned flag of a license",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLicenses(func(ctx context.Context, svc *license.Service) error {
				banned, err := svc.ToggleBan(ctx, args[0])
				if err != nil {
					return err
				}
				state := "unbanned"
				if banned {
					state = "banned"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", args[0], state)
				return nil
			})
		},
	}
}

func licenseListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every license",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLicenses(func(ctx context.Context, svc *license.Service) error {
				licenses, err := svc.List(ctx)
				if err != nil {
					return err
				}
				printLicenses(cmd.OutOrStdout(), licenses, time.Now())
				return nil
			})
		},
	}
}

func printLicenses(w io.Writer, licenses []*model.License, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tKIND\tEXPIRES\tSTATUS\tHARDWARE")
	for _, lic := range licenses {
		status := color.GreenString("active")
		switch {
		case lic.Banned:
			status = color.RedString("banned")
		case lic.Expired(now):
			status = color.YellowString("expired")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			lic.Key,
			lic.Kind,
			formatExpiry(lic.ExpiresAt),
			status,
			strings.Join(lic.Hardware, ","),
		)
	}
	tw.Flush()
}

func formatExpiry(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Local().Format(time.DateTime)
}
