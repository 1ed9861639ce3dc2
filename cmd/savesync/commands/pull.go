package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/savesync/errors"
	savesync "github.com/teranos/savesync/sync"
)

// PullCmd fetches the remote save and reconciles it with the local slot
var PullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Fetch the remote save and reconcile it with the local slot",
	Long: `Sign in with the stored session, fetch the remote save file and apply the
conflict rule: the remote copy replaces the local slot only when its conflict
field is strictly greater. --force replaces the local slot unconditionally.`,
	RunE: runPull,
}

var (
	pullForce bool
	pullPrint bool
)

func init() {
	PullCmd.Flags().BoolVar(&pullForce, "force", false, "Replace the local slot regardless of the conflict rule")
	PullCmd.Flags().BoolVar(&pullPrint, "print", false, "Print the remote blob to stdout")
}

func runPull(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := openRuntime(ctx, cfg)
	if err != nil {
		return err
	}

	loopDone, err := rt.start(ctx)
	defer rt.shutdown(cancel, loopDone)
	if err != nil {
		return err
	}

	st, err := rt.waitReady(ctx, rt.requestTimeout())
	if err != nil {
		return err
	}

	if !rt.located.Load() {
		pterm.Info.Printf("No remote save yet; created empty file %s\n", st.Handle)
		return nil
	}

	var res fetchResult
	select {
	case res = <-rt.fetches:
	case <-time.After(rt.requestTimeout()):
		return errors.Mark(errors.New("fetch timed out"), errors.ErrTimeout)
	}
	if res.err != nil {
		return errors.Wrap(res.err, "failed to fetch remote save")
	}

	blob := savesync.SaveBlob(strings.TrimSpace(string(res.blob)))
	if blob == "" {
		pterm.Info.Println("Remote save file is empty")
		return nil
	}
	if pullPrint {
		fmt.Println(string(blob))
	}

	switch {
	case pullForce:
		if err := rt.store.Set(ctx, cfg.GetLocalKey(), string(blob)); err != nil {
			return err
		}
		pterm.Success.Printf("Local slot %q replaced with remote save (%d bytes)\n", cfg.GetLocalKey(), len(blob))

	case !cfg.Conflict.Enabled:
		pterm.Warning.Println("Conflict resolution is disabled; local slot kept (use --force to replace it)")

	default:
		applied, err := rt.reconciler.Reconcile(ctx, blob)
		if err != nil {
			return errors.Wrap(err, "remote save not applied")
		}
		if applied {
			pterm.Success.Printf("Remote save is newer; local slot %q updated\n", cfg.GetLocalKey())
		} else {
			pterm.Info.Printf("Local save is current (%s not lower); nothing changed\n", cfg.Conflict.Field)
		}
	}
	return nil
}
