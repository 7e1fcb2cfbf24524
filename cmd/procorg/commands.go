package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/procorg/procorg"
)

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(b))
}

func newRegisterCommand(flags *GlobalFlags) *cobra.Command {
	var (
		name        string
		script      string
		cronExpr    string
		description string
		owner       string
	)
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a script as a managed process",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(flags)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			abs, err := filepath.Abs(script)
			if err != nil {
				return err
			}
			if _, err := os.Stat(abs); err != nil {
				return fmt.Errorf("script not found: %s", abs)
			}
			def := procorg.Definition{
				Name:        name,
				ScriptPath:  abs,
				CronExpr:    cronExpr,
				Description: description,
				Owner:       owner,
			}
			if err := app.Register(def); err != nil {
				return err
			}
			fmt.Printf("registered %s -> %s\n", name, abs)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "process name (required)")
	cmd.Flags().StringVar(&script, "script", "", "path to the shell script (required)")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "cron expression for scheduled runs (optional)")
	cmd.Flags().StringVar(&description, "description", "", "free-form description")
	cmd.Flags().StringVar(&owner, "owner", "", "system account the script runs as (root only)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("script")
	return cmd
}

func newUnregisterCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "unregister <name>",
		Short: "Remove a process definition (execution logs are kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(flags)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()
			ok, err := app.Unregister(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("process not registered: %s", args[0])
			}
			fmt.Printf("unregistered %s\n", args[0])
			return nil
		},
	}
}

func newListCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered processes",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(flags)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()
			defs, err := app.List()
			if err != nil {
				return err
			}
			printJSON(defs)
			return nil
		},
	}
}

func newRunCommand(flags *GlobalFlags) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "run <name> [-- script args...]",
		Short: "Run a registered script now",
		Long: `Run launches the script immediately. Without --wait the command
returns as soon as the script has started; the script keeps running and a
later 'procorg status' (from any invocation) reports on it.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(flags)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			name, scriptArgs := args[0], args[1:]
			var rec procorg.Record
			if wait {
				rec, err = app.RunWait(name, scriptArgs...)
			} else {
				rec, err = app.Run(name, scriptArgs...)
			}
			if err != nil {
				return err
			}
			printJSON(rec)
			if wait && rec.Status != procorg.StatusCompleted {
				return fmt.Errorf("execution %s: %s", rec.ExecutionID, rec.Status)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "block until the script finishes")
	return cmd
}

func newStopCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <name>",
		Short: "Stop the running execution of a process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(flags)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()
			if !app.Stop(args[0]) {
				return fmt.Errorf("no running execution for %s", args[0])
			}
			fmt.Printf("stopped %s\n", args[0])
			return nil
		},
	}
}

func newStatusCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status [name]",
		Short: "Show process status, for one process or all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(flags)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()
			if len(args) == 1 {
				st, err := app.Status(args[0])
				if err != nil {
					return err
				}
				printJSON(st)
				return nil
			}
			all, err := app.AllStatuses()
			if err != nil {
				return err
			}
			printJSON(all)
			return nil
		},
	}
}

func newLogsCommand(flags *GlobalFlags) *cobra.Command {
	var (
		stream      string
		lines       int
		executionID string
	)
	cmd := &cobra.Command{
		Use:   "logs <name>",
		Short: "Print captured output of the latest (or a specific) execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(flags)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()
			var out string
			if executionID != "" {
				out, err = app.ExecutionLogs(args[0], executionID, stream, lines)
			} else {
				out, err = app.Logs(args[0], stream, lines)
			}
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}
	cmd.Flags().StringVar(&stream, "stream", "stdout", "stream to read: stdout or stderr")
	cmd.Flags().IntVar(&lines, "lines", 0, "trailing lines to print (0 = whole file)")
	cmd.Flags().StringVar(&executionID, "execution-id", "", "read a specific execution instead of the latest")
	return cmd
}

func newEnableCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "enable <name>",
		Short: "Allow runs and cron triggers for a process",
		Args:  cobra.ExactArgs(1),
		RunE:  func(cmd *cobra.Command, args []string) error { return setEnabled(flags, args[0], true) },
	}
}

func newDisableCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "disable <name>",
		Short: "Block runs and cron triggers for a process",
		Args:  cobra.ExactArgs(1),
		RunE:  func(cmd *cobra.Command, args []string) error { return setEnabled(flags, args[0], false) },
	}
}

func setEnabled(flags *GlobalFlags, name string, enabled bool) error {
	app, err := openApp(flags)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()
	ok, err := app.SetEnabled(name, enabled)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("process not registered: %s", name)
	}
	if enabled {
		fmt.Printf("enabled %s\n", name)
	} else {
		fmt.Printf("disabled %s\n", name)
	}
	return nil
}

func newSchedulerCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Show the cron entries the scheduler would run",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(flags)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()
			entries, err := app.SchedulerInfo()
			if err != nil {
				return err
			}
			printJSON(entries)
			return nil
		},
	}
}

func newServeCommand(flags *GlobalFlags) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and HTTP API until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(flags)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			if err := procorg.RegisterMetrics(nil); err != nil {
				return err
			}
			if err := app.StartScheduler(); err != nil {
				return err
			}

			addr := listen
			if addr == "" {
				addr = app.Config().Listen
			}
			srv := app.Serve(addr)
			fmt.Printf("procorg serving on %s (data dir %s)\n", addr, app.Config().DataDir)

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			<-sig

			fmt.Println("shutting down")
			app.StopScheduler()
			return srv.Close()
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides config)")
	return cmd
}
