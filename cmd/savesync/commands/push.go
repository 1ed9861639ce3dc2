package commands

import (
	"context"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/savesync/errors"
	"github.com/teranos/savesync/events"
	"github.com/teranos/savesync/logger"
)

// PushCmd writes the local save to the remote file once
var PushCmd = &cobra.Command{
	Use:   "push",
	Short: "Write the local save to the remote file once",
	Long: `Sign in with the stored session, find or create the remote save file and
overwrite it with the blob in the local slot.`,
	RunE: runPush,
}

func runPush(cmd *cobra.Command, args []string) error {
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

	blob, found, err := rt.localSave(ctx)
	if err != nil {
		rt.Close()
		return err
	}
	if !found {
		rt.Close()
		return errors.NewNotFoundError("nothing saved under local key %q", cfg.GetLocalKey())
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

	spinner, _ := pterm.DefaultSpinner.Start("Writing save to remote...")
	rt.bus.Publish(events.Event{Topic: events.TopicSaveRequested, Blob: blob})

	select {
	case err := <-rt.writes:
		if err != nil {
			spinner.Fail("Write failed")
			return errors.Wrap(err, "failed to push save")
		}
	case <-time.After(rt.requestTimeout()):
		spinner.Fail("Write timed out")
		return errors.Mark(errors.New("push timed out"), errors.ErrTimeout)
	}

	spinner.Success("Save pushed")
	logger.Infow("Pushed local save",
		logger.FieldHandle, st.Handle,
		logger.FieldSize, len(blob),
	)
	pterm.Info.Printf("Remote file: %s (%d bytes)\n", st.Handle, len(blob))
	return nil
}
