package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/savesync/am"
	"github.com/teranos/savesync/errors"
	"github.com/teranos/savesync/internal/util"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Manage savesync configuration",
	Long: `am - Manage savesync configuration

Configuration sources (in order of precedence):
1. Environment variables (SAVESYNC_* prefix)
2. Project config (savesync.toml, searched upward from the working directory)
3. User config (~/.savesync/am.toml)
4. System config (/etc/savesync/config.toml)
5. Default values

Examples:
  savesync am show                      # Show current configuration
  savesync am show --format json        # Show configuration in JSON format
  savesync am show --sources            # Show where each value comes from
  savesync am get remote.backend        # Get specific config value
  savesync am set remote.backend s3     # Write a value to ~/.savesync/am.toml
  savesync am init                      # Write all defaults to ~/.savesync/am.toml
  savesync am validate                  # Validate current configuration`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the effective savesync configuration from all sources",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., remote.backend, server.port)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Write a single value to the user config file (or --file). The previous file is
kept as .back1 (up to three rotations). Values that parse as booleans or
numbers are stored as such.`,
	Args: cobra.ExactArgs(2),
	RunE: runAmSet,
}

var amInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration",
	Long:  "Write every built-in default to the user config file (or --file) so it can be edited",
	RunE:  runAmInit,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	Long:  "Validate that the current savesync configuration is valid",
	RunE:  runAmValidate,
}

var (
	configFormat  string
	configSources bool
	configFile    string
	configForce   bool
)

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")
	amShowCmd.Flags().BoolVar(&configSources, "sources", false, "Show the source of every setting")
	amSetCmd.Flags().StringVar(&configFile, "file", "", "Config file to modify (default ~/.savesync/am.toml)")
	amInitCmd.Flags().StringVar(&configFile, "file", "", "Config file to write (default ~/.savesync/am.toml)")
	amInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file (it is kept as .back1)")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amSetCmd)
	AmCmd.AddCommand(amInitCmd)
	AmCmd.AddCommand(amValidateCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	v := am.GetViper()

	if configSources {
		return printSources(cmd.OutOrStdout(), am.Introspect(v, am.ConfigSources))
	}
	return printSettings(cmd.OutOrStdout(), configFormat, v.AllSettings())
}

// printSettings marshals settings in the requested format
func printSettings(w io.Writer, format string, settings map[string]interface{}) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(settings, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to JSON")
		}
		fmt.Fprintln(w, string(data))

	case "yaml":
		data, err := yaml.Marshal(settings)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to YAML")
		}
		fmt.Fprintf(w, "# savesync configuration\n%s", string(data))

	case "toml":
		data, err := toml.Marshal(settings)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to TOML")
		}
		fmt.Fprintf(w, "# savesync configuration\n%s", string(data))

	default:
		return errors.Newf("unsupported format: %s (supported: toml, json, yaml)", format)
	}
	return nil
}

// printSources prints one line per setting with its origin
func printSources(w io.Writer, settings []am.SettingInfo) error {
	data := pterm.TableData{{"Key", "Value", "Source", "From"}}
	for _, s := range settings {
		value := util.Truncate(fmt.Sprintf("%v", s.Value), 50)
		data = append(data, []string{s.Key, value, string(s.Source), s.SourcePath})
	}
	return pterm.DefaultTable.WithHasHeader().WithWriter(w).WithData(data).Render()
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	v := am.GetViper()
	if !v.IsSet(key) {
		return errors.NewNotFoundError("configuration key %q not found", key)
	}

	fmt.Fprintln(cmd.OutOrStdout(), am.Get(key))
	return nil
}

func runAmSet(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = am.UserConfigPath()
	}

	if err := am.SetValue(path, args[0], parseValue(args[1])); err != nil {
		return err
	}
	am.Reset()

	pterm.Success.Printf("%s updated in %s\n", args[0], path)
	return nil
}

// parseValue keeps booleans and numbers typed in the TOML file
func parseValue(s string) interface{} {
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func runAmInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = am.UserConfigPath()
	}

	if _, err := os.Stat(path); err == nil && !configForce {
		return errors.WithHint(
			errors.Newf("%s already exists", path),
			"use --force to overwrite it; the current file is kept as .back1",
		)
	}

	if err := am.WriteDefaultConfig(path); err != nil {
		return err
	}
	pterm.Success.Printf("Default configuration written to %s\n", path)
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration is valid")
	return nil
}
