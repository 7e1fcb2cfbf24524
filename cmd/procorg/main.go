package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/procorg/procorg"
)

// GlobalFlags holds the persistent flags shared by every subcommand.
type GlobalFlags struct {
	ConfigPath string
	DataDir    string
	LogLevel   string
}

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRoot() *cobra.Command {
	flags := &GlobalFlags{}

	root := &cobra.Command{
		Use:   "procorg",
		Short: "Script supervision and scheduling tool",
		Long: `Procorg registers shell scripts, runs them on demand or on a cron
schedule, and keeps their state on disk so that every invocation of the
tool agrees on what is running.

Examples:
  procorg register --name=backup --script=/opt/scripts/backup.sh --cron="0 2 * * *"
  procorg run backup -- --fast
  procorg status backup
  procorg logs backup --lines=50
  procorg serve`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.PersistentFlags().StringVar(&flags.DataDir, "data-dir", "", "data directory override")
	root.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "warn", "log level: debug, info, warn, error")

	root.AddCommand(
		newRegisterCommand(flags),
		newUnregisterCommand(flags),
		newListCommand(flags),
		newRunCommand(flags),
		newStopCommand(flags),
		newStatusCommand(flags),
		newLogsCommand(flags),
		newEnableCommand(flags),
		newDisableCommand(flags),
		newSchedulerCommand(flags),
		newServeCommand(flags),
	)
	return root
}

// loadConfig resolves the effective configuration from flags.
func loadConfig(flags *GlobalFlags) (procorg.Config, error) {
	cfg := procorg.DefaultConfig()
	if flags.ConfigPath != "" {
		var err error
		cfg, err = procorg.LoadConfig(flags.ConfigPath)
		if err != nil {
			return cfg, err
		}
	}
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}
	return cfg, nil
}

// openApp builds a fresh App for one invocation. The CLI never talks to a
// daemon; every command works off the shared durable state directly.
func openApp(flags *GlobalFlags) (*procorg.App, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	logCfg := cfg.Log
	if logCfg.Level == "" {
		logCfg.Level = flags.LogLevel
	}
	procorg.SetupLogging(logCfg)
	return procorg.New(cfg)
}
