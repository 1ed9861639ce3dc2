package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/savesync/am"
	"github.com/teranos/savesync/db"
	"github.com/teranos/savesync/errors"
	"github.com/teranos/savesync/internal/util"
	"github.com/teranos/savesync/logger"
	"github.com/teranos/savesync/savestore"
	"github.com/teranos/savesync/server"
	"github.com/teranos/savesync/version"
)

// StatusCmd shows session, local slot and recent sync activity
var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session, local slot and recent sync activity",
	RunE:  runStatus,
}

var statusLimit int

func init() {
	StatusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 10, "Number of journal entries to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.ComponentLogger("status")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	database, err := db.OpenWithMigrations(cfg.GetDatabasePath(), log)
	if err != nil {
		return err
	}
	defer database.Close()

	signedIn := cfg.Session.Active
	if _, tokens := newProvider(cfg, log); tokens != nil {
		signedIn = tokens.Active()
	}

	pterm.DefaultSection.Println("Session")
	if signedIn {
		pterm.Success.Println("Signed in")
	} else {
		pterm.Warning.Println("Signed out (run 'savesync login')")
	}

	pterm.DefaultSection.Println("Local slot")
	store := savestore.NewSQLStore(database, log)
	blob, found, err := store.Get(ctx, cfg.GetLocalKey())
	if err != nil {
		return err
	}
	if found {
		pterm.Info.Printf("%s: %d bytes\n", cfg.GetLocalKey(), len(blob))
	} else {
		pterm.Info.Printf("%s: empty\n", cfg.GetLocalKey())
	}

	pterm.DefaultSection.Println("Bridge")
	if st, err := fetchBridgeStatus(ctx, cfg); err != nil {
		pterm.Info.Printf("Not running on port %d\n", cfg.GetServerPort())
		log.Debugw("Bridge status unavailable", logger.FieldError, err)
	} else {
		pterm.Info.Printf("Phase %s, handle %q, %d pending, %d clients\n", st.Phase, st.Handle, st.Pending, st.Clients)
		if local := version.Get().Short(); st.Version != local {
			pterm.Warning.Printf("Bridge runs build %s, this CLI is %s; restart 'savesync run' after upgrading\n", st.Version, local)
		}
	}

	pterm.DefaultSection.Println("Recent sync activity")
	entries, err := savestore.NewJournal(database).Recent(ctx, statusLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		pterm.Info.Println("No remote operations recorded")
		return nil
	}
	return pterm.DefaultTable.WithHasHeader().WithData(journalTable(entries)).Render()
}

// journalTable renders entries newest first
func journalTable(entries []savestore.Entry) pterm.TableData {
	data := pterm.TableData{{"Time", "Session", "Operation", "Handle", "Size", "Result"}}
	for _, e := range entries {
		result := "ok"
		if e.Error != "" {
			result = util.Truncate(e.Error, 60)
		}
		data = append(data, []string{
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%d", e.Session),
			e.Operation,
			e.Handle,
			fmt.Sprintf("%d", e.Size),
			result,
		})
	}
	return data
}

// fetchBridgeStatus asks a running bridge for the controller state
func fetchBridgeStatus(ctx context.Context, cfg *am.Config) (*server.StatusResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	url := fmt.Sprintf("http://127.0.0.1:%d/api/status", cfg.GetServerPort())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", version.Get().UserAgent())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("bridge returned %s", resp.Status)
	}
	var st server.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, errors.Wrap(err, "failed to decode bridge status")
	}
	return &st, nil
}
