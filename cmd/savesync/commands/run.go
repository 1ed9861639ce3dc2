package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/savesync/errors"
	"github.com/teranos/savesync/internal/util"
	"github.com/teranos/savesync/logger"
	"github.com/teranos/savesync/server"
)

// RunCmd runs the sync controller and the local bridge until interrupted
var RunCmd = &cobra.Command{
	Use:     "run",
	Aliases: []string{"serve"},
	Short:   "Start the sync controller and the local bridge",
	Long: `Start syncing. The controller follows the session: signing in finds or
creates the private save file, every local save is pushed to it in order, and
signing out stops all remote activity. The local program talks to the bridge
over ws://127.0.0.1:<port>/ws.`,
	RunE: runRun,
}

var runPort int

func init() {
	RunCmd.Flags().IntVar(&runPort, "port", 0, "Bridge port (overrides server.port)")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runPort > 0 {
		cfg.Server.Port = util.Ptr(runPort)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := openRuntime(ctx, cfg)
	if err != nil {
		return err
	}

	if cfg.Conflict.Enabled {
		rt.reconciler.Start()
	}

	loopDone, err := rt.start(ctx)
	if err != nil {
		// the bridge still serves local saves without a session
		pterm.Warning.Printf("Sync disabled: %v\n", err)
	}

	srv := server.New(server.Config{
		Port:              cfg.GetServerPort(),
		Key:               cfg.GetLocalKey(),
		SaveRatePerSecond: cfg.Server.SaveRatePerSecond,
		SaveBurst:         cfg.Server.SaveBurst,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
	}, rt.store, rt.bus, rt.ctrl, rt.gate, rt.log.Named("server"))

	verbosity, _ := cmd.Flags().GetCount("verbose")
	printRunBanner(cfg, rt.gate.Active(), verbosity)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var serveErr error
	select {
	case <-sigChan:
		pterm.Info.Println("Shutting down...")
	case serveErr = <-errChan:
		if serveErr != nil {
			logger.Errorw("Bridge stopped", logger.FieldError, serveErr)
		}
	}

	if err := srv.Stop(); err != nil {
		logger.Warnw("Bridge shutdown error", logger.FieldError, err)
	}
	rt.shutdown(cancel, loopDone)

	if serveErr != nil {
		return errors.Wrap(serveErr, "bridge failed")
	}
	pterm.Success.Println("Stopped")
	return nil
}
