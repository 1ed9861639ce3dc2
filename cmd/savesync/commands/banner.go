package commands

import (
	"fmt"

	"github.com/teranos/savesync/am"
	"github.com/teranos/savesync/logger"
	"github.com/teranos/savesync/version"
)

// printRunBanner prints the startup summary for `savesync run`
func printRunBanner(cfg *am.Config, signedIn bool, verbosity int) {
	green := "\033[32m"
	yellow := "\033[33m"
	blue := "\033[34m"
	bold := "\033[1m"
	reset := "\033[0m"

	versionInfo := version.Get()

	session := yellow + "signed out" + reset
	if signedIn {
		session = green + "signed in" + reset
	}

	conflict := "off (local always wins)"
	if cfg.Conflict.Enabled {
		conflict = fmt.Sprintf("higher %q wins", cfg.Conflict.Field)
	}

	fmt.Printf("\n%s%s┌─ savesync ──────────────────────────────────────────┐%s\n", green, bold, reset)
	fmt.Printf("%s│%s Version:   %s\n", green, reset, versionInfo.Short())
	fmt.Printf("%s│%s Verbosity: %s\n", green, reset, logger.LevelName(verbosity))
	fmt.Printf("%s│%s Database:  %s\n", green, reset, cfg.GetDatabasePath())
	fmt.Printf("%s│%s Slot:      %s\n", green, reset, cfg.GetLocalKey())
	fmt.Printf("%s│%s Remote:    %s\n", green, reset, cfg.Remote.Backend)
	fmt.Printf("%s│%s Session:   %s\n", green, reset, session)
	fmt.Printf("%s│%s Conflicts: %s\n", green, reset, conflict)
	fmt.Printf("%s│%s Bridge:    ws://127.0.0.1:%d/ws\n", green, reset, cfg.GetServerPort())
	fmt.Printf("%s└─────────────────────────────────────────────────────┘%s\n", green, reset)
	fmt.Printf("%s💡 Press Ctrl+C to stop%s\n\n", blue, reset)
}
