package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/savesync/cmd/savesync/commands"
	"github.com/teranos/savesync/logger"
)

var rootCmd = &cobra.Command{
	Use:   "savesync",
	Short: "savesync - keep a local save slot in sync with private cloud storage",
	Long: `savesync - keep a local save slot in sync with private cloud storage.

While the user is signed in, savesync finds or creates one private save file,
pushes every local save to it in order, and offers the remote copy back to the
local program when a session starts.

Available commands:
  run     - Start the sync controller and the local bridge
  push    - Write the local save to the remote file once
  pull    - Fetch the remote save and reconcile it with the local slot
  status  - Show session, local slot and recent sync activity
  login   - Sign in to Google Drive
  logout  - Sign out (removes the stored token)
  am      - Manage savesync configuration

Examples:
  savesync login              # Sign in through the browser
  savesync run                # Sync until Ctrl+C
  savesync status             # What is synced and when
  savesync am show --sources  # Where each setting comes from`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Initialize(false); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		verbosity, _ := cmd.Flags().GetCount("verbose")
		logger.SetVerbosity(verbosity)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.PushCmd)
	rootCmd.AddCommand(commands.PullCmd)
	rootCmd.AddCommand(commands.StatusCmd)
	rootCmd.AddCommand(commands.LoginCmd)
	rootCmd.AddCommand(commands.LogoutCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
