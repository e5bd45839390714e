package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Adrian-Rod-Mol/arducam-apps/internal/logging"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/systemd"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/updater"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/version"
)

// CreateUpdateCmd creates the update command.
func CreateUpdateCmd() *cobra.Command {
	var apply bool
	var dev bool
	var rollback bool
	var status bool
	var restart bool
	var prerelease bool
	var repository string

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Check for and apply binary updates",
		Long: `Checks GitHub releases for a newer node binary. With --apply the ` +
			`release is downloaded and staged over the current binary after backing ` +
			`it up; pass --restart to bounce the systemd unit so the new image takes ` +
			`effect. --rollback restores the backed up binary.`,
		Run: func(_ *cobra.Command, _ []string) {
			logging.Initialize(logging.Config{Level: "warn", Format: "text"})

			upd, err := updater.New(updater.Options{
				Repository: repository,
				Prerelease: prerelease,
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to create updater: %v\n", err)
				os.Exit(1)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			switch {
			case status:
				printUpdateStatus(ctx, upd.Status())

			case rollback:
				if err := upd.Rollback(); err != nil {
					fmt.Fprintf(os.Stderr, "rollback failed: %v\n", err)
					os.Exit(1)
				}
				fmt.Println(colorize(os.Stdout, ansiGreen, "Rollback complete"))
				finishWithRestart(ctx, restart)

			case dev:
				if err := upd.ApplyDevBuild(ctx); err != nil {
					fmt.Fprintf(os.Stderr, "dev build failed: %v\n", err)
					os.Exit(1)
				}
				fmt.Println(colorize(os.Stdout, ansiGreen, "Dev build staged"))
				finishWithRestart(ctx, restart)

			case apply:
				rel, err := upd.Check(ctx)
				if err != nil {
					fmt.Fprintf(os.Stderr, "update check failed: %v\n", err)
					os.Exit(1)
				}
				if !rel.Newer {
					fmt.Printf("Already up to date (%s)\n", rel.Current)
					return
				}
				fmt.Printf("Updating %s -> %s (%s)\n",
					rel.Current, rel.Latest, humanize.Bytes(uint64(rel.AssetBytes)))
				if err := upd.Apply(ctx, rel); err != nil {
					fmt.Fprintf(os.Stderr, "update failed: %v\n", err)
					os.Exit(1)
				}
				fmt.Println(colorize(os.Stdout, ansiGreen, "Update staged"))
				finishWithRestart(ctx, restart)

			default:
				rel, err := upd.Check(ctx)
				if err != nil {
					fmt.Fprintf(os.Stderr, "update check failed: %v\n", err)
					os.Exit(1)
				}
				if !rel.Newer {
					fmt.Printf("Up to date: %s\n", rel.Current)
					return
				}
				fmt.Printf("Update available: %s -> %s (%s, published %s)\n",
					rel.Current, rel.Latest,
					humanize.Bytes(uint64(rel.AssetBytes)),
					rel.PublishedAt.Local().Format(time.RFC3339))
				fmt.Printf("Run %q to install\n", "arducam-node update --apply")
			}
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "Download and stage the latest release")
	cmd.Flags().BoolVar(&dev, "dev", false, "Stage the rolling dev build instead of a release")
	cmd.Flags().BoolVar(&rollback, "rollback", false, "Restore the previously backed up binary")
	cmd.Flags().BoolVar(&status, "status", false, "Show running version and backup availability")
	cmd.Flags().BoolVar(&restart, "restart", false, "Restart the systemd unit after staging")
	cmd.Flags().BoolVar(&prerelease, "prerelease", false, "Consider prerelease versions")
	cmd.Flags().StringVar(&repository, "repository", "Adrian-Rod-Mol/arducam-apps", "GitHub repository slug")

	return cmd
}

func printUpdateStatus(ctx context.Context, st updater.Status) {
	fmt.Printf("Current version: %s\n", st.CurrentVersion)
	if st.BackupVersion != "" {
		fmt.Printf("Backup:          %s (saved %s)\n",
			st.BackupVersion, st.BackupAt.Local().Format(time.RFC3339))
	} else {
		fmt.Println("Backup:          none")
	}
	fmt.Printf("Build:           %s\n", version.String())
	if state, err := unitState(ctx); err == nil {
		fmt.Printf("Unit:            %s (%s)\n", systemd.UnitName, state)
	}
}

// unitState reports the node unit's current ActiveState. Best effort:
// on a box without systemd the line is simply omitted.
func unitState(ctx context.Context) (string, error) {
	mgr, err := systemd.NewManager(ctx)
	if err != nil {
		return "", err
	}
	defer mgr.Close()
	return mgr.ActiveState(ctx, systemd.UnitName)
}

// finishWithRestart restarts the node's unit when asked, otherwise
// reminds the operator that the staged binary needs a restart.
func finishWithRestart(ctx context.Context, restart bool) {
	if !restart {
		fmt.Println(colorize(os.Stdout, ansiYellow, "Restart the service to take effect:"),
			"systemctl restart", systemd.UnitName)
		return
	}

	mgr, err := systemd.NewManager(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to reach systemd: %v\n", err)
		os.Exit(1)
	}
	defer mgr.Close()

	if err := mgr.RestartService(ctx, systemd.UnitName); err != nil {
		fmt.Fprintf(os.Stderr, "failed to restart %s: %v\n", systemd.UnitName, err)
		os.Exit(1)
	}
	fmt.Println(colorize(os.Stdout, ansiGreen, "Service restarted"))
}
