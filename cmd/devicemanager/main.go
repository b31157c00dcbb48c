package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"custom-device-manager/internal/api"
	"custom-device-manager/internal/engine"
	"custom-device-manager/internal/model"
	"custom-device-manager/internal/parser"

	"github.com/spf13/cobra"
)

var (
	appliancesFile  string
	createArg       string
	patchMode       bool
	patchAddArg     string
	patchRemoveArg  string
	deleteArg       string
	auditMode       bool
	verbose         bool
	includeCriteria bool
	includeMetrics  bool
	autoYes         bool
	dryRun          bool
	outputDir       string
	provider        string
	dbDSN           string
	configFile      string
	logLevel        string
	logFile         string
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "devicemanager",
		Short: "Manage ExtraHop custom devices across appliances",
		Long: `devicemanager audits, creates, patches, and deletes custom devices on
ExtraHop appliances, reconciling desired state from CSV files or a MariaDB
inventory against the live appliance configuration.`,
		RunE: run,
	}

	rootCmd.Flags().StringVar(&appliancesFile, "appliances", "", "CSV file with appliance hostnames and API keys (required)")
	rootCmd.Flags().BoolVar(&auditMode, "audit", false, "Audit custom devices on the appliances")
	rootCmd.Flags().StringVar(&createArg, "create", "", "Custom devices to create (CSV path, or source tag for the mariadb provider)")
	rootCmd.Flags().BoolVar(&patchMode, "patch", false, "With --create, overwrite existing custom devices when found")
	rootCmd.Flags().StringVar(&patchAddArg, "patch-add", "", "Criteria to append to existing devices (CSV path or source tag)")
	rootCmd.Flags().StringVar(&patchRemoveArg, "patch-remove", "", "Criteria to remove from existing devices (CSV path or source tag)")
	rootCmd.Flags().StringVar(&deleteArg, "delete", "", "Custom devices to delete (CSV path or source tag, only the name column is used)")
	rootCmd.Flags().BoolVar(&autoYes, "yes", false, "Skip interactive prompts and auto-confirm all patch operations")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log what would happen without making any changes")
	rootCmd.Flags().BoolVar(&verbose, "verbose", false, "Include additional details in audit output")
	rootCmd.Flags().BoolVar(&includeCriteria, "include-criteria", false, "Include custom device criteria in audit output")
	rootCmd.Flags().BoolVar(&includeMetrics, "include-metrics", false, "Include custom device byte metrics in audit output")
	rootCmd.Flags().StringVar(&outputDir, "output-dir", "", "Directory to write output files into (default: current directory)")
	rootCmd.Flags().StringVar(&provider, "provider", "csv", "Desired-state provider: 'csv' or 'mariadb'")
	rootCmd.Flags().StringVar(&dbDSN, "db", "", "Database connection string (for the 'mariadb' provider)")
	rootCmd.Flags().StringVar(&configFile, "config", "", "YAML file with connection tuning (retries, backoff, timeouts, TLS)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	rootCmd.Flags().StringVar(&logFile, "log-file", "", "Log file path (default: stderr)")

	rootCmd.MarkFlagRequired("appliances")

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger := setupLogger(logLevel, logFile)
	slog.SetDefault(logger)

	slog.Info("Starting custom device manager")
	if dryRun {
		slog.Info("Dry-run mode enabled, no changes will be made", "dry_run", true)
	}

	if !auditMode && createArg == "" && patchAddArg == "" &&
		patchRemoveArg == "" && deleteArg == "" {
		return errors.New("at least one action is required: --audit, --create, --delete, --patch-add, or --patch-remove")
	}

	cfg := api.DefaultConfig()
	if configFile != "" {
		var err error
		cfg, err = api.LoadConfig(configFile)
		if err != nil {
			slog.Error("Failed to load config", "path", configFile, "error", err)
			return err
		}
	}

	switch provider {
	case "csv":
		for _, path := range []string{appliancesFile, createArg, patchAddArg, patchRemoveArg, deleteArg} {
			if path == "" {
				continue
			}
			if _, err := os.Stat(path); err != nil {
				slog.Error("Input file not found", "path", path)
				return fmt.Errorf("input file not found: %s", path)
			}
		}
	case "mariadb":
		if dbDSN == "" {
			return errors.New("database connection string must be provided for the mariadb provider")
		}
		if _, err := os.Stat(appliancesFile); err != nil {
			slog.Error("Appliances file not found", "path", appliancesFile)
			return fmt.Errorf("input file not found: %s", appliancesFile)
		}
	default:
		return fmt.Errorf("unknown desired-state provider: %s", provider)
	}

	if outputDir != "" {
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return fmt.Errorf("could not create output directory: %w", err)
		}
		slog.Info("Output directory", "path", outputDir)
	}

	appliances, err := loadRoster(appliancesFile)
	if err != nil {
		slog.Error("Failed to read appliances file", "path", appliancesFile, "error", err)
		return err
	}
	slog.Info("Appliance roster loaded", "count", len(appliances))

	desired := make(map[string]model.DeviceMap)
	for flag, arg := range map[string]string{
		"create":       createArg,
		"patch-add":    patchAddArg,
		"patch-remove": patchRemoveArg,
		"delete":       deleteArg,
	} {
		if arg == "" {
			continue
		}
		devices, err := loadDesired(provider, dbDSN, arg)
		if err != nil {
			slog.Error("Failed to load desired state", "flag", flag, "source", arg, "error", err)
			return err
		}
		slog.Info("Desired state loaded", "flag", flag, "devices", len(devices))
		desired[flag] = devices
	}

	summary := &model.Summary{}
	prompter := &engine.StdinPrompter{In: cmd.InOrStdin(), Out: cmd.OutOrStdout()}

	for _, appliance := range appliances {
		slog.Info("Processing appliance", "host", appliance.Hostname)
		client := api.NewClient(appliance.Hostname, appliance.APIKey, cfg)
		if !client.Connect() {
			slog.Error("Could not connect to appliance, skipping", "host", appliance.Hostname)
			continue
		}
		r := &engine.Reconciler{
			Client:  client,
			Prompt:  prompter,
			Summary: summary,
			DryRun:  dryRun,
		}

		if auditMode {
			if err := r.Audit(outputDir, verbose, includeCriteria, includeMetrics); err != nil {
				slog.Error("Audit failed", "host", appliance.Hostname, "error", err)
			}
		}
		if createArg != "" {
			r.CreateOrPatch(desired["create"], patchMode, autoYes)
		}
		if patchAddArg != "" {
			r.AppendCriteria(desired["patch-add"], autoYes)
		}
		if patchRemoveArg != "" {
			r.RemoveCriteria(desired["patch-remove"], autoYes)
		}
		if deleteArg != "" {
			r.DeleteByName(desired["delete"])
		}
	}

	summary.Log()
	return nil
}

func loadRoster(path string) ([]model.Appliance, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parser.ParseRoster(f)
}

// loadDesired resolves one desired-state argument: a CSV path for the csv
// provider, or a source tag for the mariadb provider.
func loadDesired(provider, dsn, arg string) (model.DeviceMap, error) {
	switch provider {
	case "csv":
		f, err := os.Open(arg)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return parser.ParseDevices(f)
	case "mariadb":
		p, err := parser.NewMariaDBProvider(dsn, arg)
		if err != nil {
			return nil, err
		}
		defer p.Close()
		return p.Devices()
	default:
		return nil, fmt.Errorf("unknown desired-state provider: %s", provider)
	}
}

func setupLogger(level, logFilePath string) *slog.Logger {
	logWriter := logDestination(logFilePath)

	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(logWriter, &slog.HandlerOptions{Level: lvl}))
}

// logDestination opens the requested log file. There is no logger yet to
// report an open failure, so an unusable path silently falls back to stderr.
func logDestination(path string) io.Writer {
	if path == "" {
		return os.Stderr
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return os.Stderr
	}
	return f
}
