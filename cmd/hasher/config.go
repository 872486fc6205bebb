package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/jamesainslie/hasher/pkg/hasher/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage hasher configuration settings.

Configuration is loaded from:
  1. $XDG_CONFIG_HOME/hasher/config.yaml (if set)
  2. ~/.config/hasher/config.yaml

Environment variables override config file settings using the HASHER_ prefix:
  HASHER_WORKERS=8
  HASHER_SYMLINKS=skip
  HASHER_HISTORY_ENABLED=false`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  `Display the configuration merged from defaults, file, environment, and flags.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the default configuration file",
	Long:  `Create a default configuration file if one doesn't exist.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the configuration file path",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	if used := settings.ConfigFileUsed(); used != "" {
		fmt.Fprintf(out, "# Config file: %s\n", used)
	} else {
		fmt.Fprintln(out, "# Config file: (none found, using defaults)")
	}

	data, err := yaml.Marshal(settings.AllSettings())
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	if _, err := out.Write(data); err != nil {
		return err
	}

	var overrides []string
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "HASHER_") {
			overrides = append(overrides, kv)
		}
	}
	if len(overrides) > 0 {
		sort.Strings(overrides)
		fmt.Fprintln(out, "\n# Environment overrides:")
		for _, kv := range overrides {
			fmt.Fprintf(out, "#   %s\n", kv)
		}
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	path, err := config.ConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Config file already exists: %s\n", path)
		return nil
	}

	path, err = config.WriteDefault()
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created default config file: %s\n", path)
	return nil
}

func runConfigPath(cmd *cobra.Command, _ []string) error {
	path, err := config.ConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Debug("config file does not exist, defaults apply", "path", path)
	}
	return nil
}
