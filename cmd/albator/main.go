// Package main provides the CLI entry point for albator
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/cluster2600/ALBATOR/internal/core/adapter"
	"github.com/cluster2600/ALBATOR/internal/core/baseline"
	"github.com/cluster2600/ALBATOR/internal/core/gate"
	"github.com/cluster2600/ALBATOR/internal/core/preflight"
	"github.com/cluster2600/ALBATOR/internal/core/rollback"
	"github.com/cluster2600/ALBATOR/internal/core/script"
	"github.com/cluster2600/ALBATOR/internal/server/api"
	"github.com/cluster2600/ALBATOR/internal/shared/config"
	"github.com/cluster2600/ALBATOR/internal/shared/types"
	"github.com/cluster2600/ALBATOR/pkg/version"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	exitOK            = 0
	exitFailure       = 1
	exitInvalidConfig = 2
)

var (
	rootCmd = &cobra.Command{
		Use:   "albator",
		Short: "macOS security hardening toolkit",
		Long: `Albator hardens macOS systems through auditable shell scripts with
preflight environment checks and point-in-time rollback:
- Preflight gate that blocks mutating operations in unhealthy environments
- Rollback points capturing pre-mutation defaults, system and service state
- Baseline generation and apply from local rule documents
- Local web console for inspection and restore`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	preflightCmd = &cobra.Command{
		Use:   "preflight",
		Short: "Run the preflight environment checks",
		RunE:  runPreflight,
	}

	doctorCmd = &cobra.Command{
		Use:   "doctor",
		Short: "Run the full diagnostic battery",
		Long:  `Run every preflight check with all requirements enabled, for troubleshooting.`,
		RunE:  runDoctor,
	}

	rollbackCmd = &cobra.Command{
		Use:   "rollback",
		Short: "Manage rollback points",
	}

	rollbackListCmd = &cobra.Command{
		Use:   "list",
		Short: "List rollback points, newest first",
		RunE:  runRollbackList,
	}

	rollbackRestoreCmd = &cobra.Command{
		Use:   "restore <rollback-id>",
		Short: "Restore a rollback point (entries replay in reverse capture order)",
		Args:  cobra.ExactArgs(1),
		RunE:  runRollbackRestore,
	}

	rollbackCleanupCmd = &cobra.Command{
		Use:   "cleanup",
		Short: "Remove old rollback points beyond the retention count",
		RunE:  runRollbackCleanup,
	}

	baselineCmd = &cobra.Command{
		Use:   "baseline",
		Short: "Generate, tailor and apply security baselines from rule documents",
	}

	baselineGenerateCmd = &cobra.Command{
		Use:   "generate <keyword>",
		Short: "Generate a baseline manifest for a keyword",
		Args:  cobra.ExactArgs(1),
		RunE:  runBaselineGenerate,
	}

	baselineTailorCmd = &cobra.Command{
		Use:   "tailor <keyword>",
		Short: "Generate a tailored baseline manifest for local editing",
		Args:  cobra.ExactArgs(1),
		RunE:  runBaselineTailor,
	}

	baselineApplyCmd = &cobra.Command{
		Use:   "apply <keyword>",
		Short: "Apply a baseline under rollback protection",
		Args:  cobra.ExactArgs(1),
		RunE:  runBaselineApply,
	}

	baselineListTagsCmd = &cobra.Command{
		Use:   "list-tags",
		Short: "List the tags used across rule documents",
		RunE:  runBaselineListTags,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the local web console API",
		RunE:  runServe,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput {
				printJSON(version.GetInfo())
				return
			}
			fmt.Println(version.GetInfo().String())
		},
	}

	// Persistent flags
	configPath string
	rootDir    string
	verbose    bool
	jsonOutput bool

	// Preflight flags
	preflightRequireSudo  bool
	preflightRequireRules bool
	minMacOSVersion       string
	enforceMinVersion     bool

	// Rollback flags
	restoreDryRun bool
	cleanupKeep   int

	// Baseline flags
	applyDryRun bool

	// Serve flags
	serveListen string
	serveAPIKey string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root-dir", "", "Project root directory (default: current directory)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json-output", false, "Print machine-readable JSON")
	rootCmd.PersistentFlags().StringVar(&minMacOSVersion, "min-macos-version", "", "Override the configured minimum macOS version")
	rootCmd.PersistentFlags().BoolVar(&enforceMinVersion, "enforce-min-version", false, "Override whether the minimum version is enforced")

	preflightCmd.Flags().BoolVar(&preflightRequireSudo, "require-sudo", false, "Require root or non-interactive sudo")
	preflightCmd.Flags().BoolVar(&preflightRequireRules, "require-rules", false, "Require rule YAML files to be present")

	rollbackRestoreCmd.Flags().BoolVar(&restoreDryRun, "dry-run", false, "Plan the restore without executing it")
	rollbackCleanupCmd.Flags().IntVar(&cleanupKeep, "keep", -1, "Rollback points to keep (default: configured keep_count)")
	rollbackCmd.AddCommand(rollbackListCmd)
	rollbackCmd.AddCommand(rollbackRestoreCmd)
	rollbackCmd.AddCommand(rollbackCleanupCmd)

	baselineApplyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "Pass --dry-run to the hardening script")
	baselineCmd.AddCommand(baselineGenerateCmd)
	baselineCmd.AddCommand(baselineTailorCmd)
	baselineCmd.AddCommand(baselineApplyCmd)
	baselineCmd.AddCommand(baselineListTagsCmd)

	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Address to listen on (default: configured listen address)")
	serveCmd.Flags().StringVar(&serveAPIKey, "api-key", "", "Bearer token for the console API")

	rootCmd.AddCommand(preflightCmd)
	rootCmd.AddCommand(doctorCmd)
	for keyword := range script.Known {
		rootCmd.AddCommand(newScriptCommand(keyword))
	}
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(baselineCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitFailure)
	}
}

// app bundles the wired components every command works with.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	adapter   *adapter.SystemAdapter
	evaluator *preflight.Evaluator
	gate      *gate.Controller
	rollback  *rollback.Manager
	scripts   *script.Runner
	baseline  *baseline.Engine
}

// newApp loads configuration and wires the component graph. Schema
// violations in the config file terminate with exit code 2.
func newApp() (*app, error) {
	logger := createLogger(verbose)

	cfg, source, err := config.Load(configPath, rootDir)
	if err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		fmt.Fprintln(os.Stderr, "invalid configuration:")
		for _, msg := range errs {
			fmt.Fprintf(os.Stderr, "  - %s\n", msg)
		}
		os.Exit(exitInvalidConfig)
	}
	if source != "" {
		logger.Debug("loaded config", zap.String("source", source))
	}

	runner := adapter.NewExecRunner(cfg.ProbeTimeout())
	sysAdapter := adapter.NewSystemAdapter(runner, logger)
	evaluator := preflight.NewEvaluator(cfg.RootDir, cfg.Dependencies, sysAdapter, logger)
	rollbackManager := rollback.NewManager(cfg.Rollback, sysAdapter, logger)
	scripts := script.NewRunner(cfg.ScriptsDir, logger)

	return &app{
		cfg:       cfg,
		logger:    logger,
		adapter:   sysAdapter,
		evaluator: evaluator,
		gate:      gate.NewController(evaluator, cfg.Preflight, logger),
		rollback:  rollbackManager,
		scripts:   scripts,
		baseline:  baseline.NewEngine(cfg.RootDir, scripts, rollbackManager, logger),
	}, nil
}

func (a *app) close() {
	a.logger.Sync()
}

func runPreflight(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	opts := preflight.Options{
		RequireSudo:       preflightRequireSudo,
		RequireRules:      preflightRequireRules,
		MinMacOSVersion:   a.cfg.Preflight.MinMacOSVersion,
		EnforceMinVersion: a.cfg.Preflight.EnforceMinVersion,
	}
	minVersion, enforce := gateOverrides(cmd)
	if minVersion != "" {
		opts.MinMacOSVersion = minVersion
	}
	if enforce != nil {
		opts.EnforceMinVersion = *enforce
	}

	summary := a.evaluator.Run(cmd.Context(), opts)
	printSummary(summary)
	if !summary.Passed {
		os.Exit(exitFailure)
	}
	return nil
}

func runDoctor(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	summary := a.evaluator.Run(cmd.Context(), preflight.Options{
		RequireSudo:       true,
		RequireRules:      true,
		MinMacOSVersion:   a.cfg.Preflight.MinMacOSVersion,
		EnforceMinVersion: a.cfg.Preflight.EnforceMinVersion,
	})
	printSummary(summary)

	if !jsonOutput {
		fmt.Println("Hardening scripts:")
		keywords := make([]string, 0, len(script.Known))
		for keyword := range script.Known {
			keywords = append(keywords, keyword)
		}
		sort.Strings(keywords)
		for _, keyword := range keywords {
			if path, err := a.scripts.Path(keyword); err == nil {
				fmt.Printf("  [OK] %s (%s)\n", keyword, path)
			} else {
				fmt.Printf("  [MISSING] %s\n", keyword)
			}
		}
	}

	if !summary.Passed {
		os.Exit(exitFailure)
	}
	return nil
}

// newScriptCommand builds one command per hardening script. Flags are not
// parsed; everything after the keyword except the version-policy overrides
// is forwarded to the script verbatim.
func newScriptCommand(keyword string) *cobra.Command {
	return &cobra.Command{
		Use:                keyword,
		Short:              fmt.Sprintf("Run the %s hardening script", keyword),
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			minVersion, enforce, scriptArgs := extractGateOverrides(args)
			summary, ok := a.gate.Check(cmd.Context(), keyword, "", minVersion, enforce)
			if summary != nil {
				printSummary(summary)
			}
			if !ok {
				os.Exit(exitFailure)
			}
			return a.scripts.Run(cmd.Context(), keyword, scriptArgs...)
		},
	}
}

// gateOverrides reads the version-policy override flags from a parsed
// command. A nil enforce pointer means the flag was not set.
func gateOverrides(cmd *cobra.Command) (string, *bool) {
	var enforce *bool
	if cmd.Flags().Changed("enforce-min-version") {
		v := enforceMinVersion
		enforce = &v
	}
	return minMacOSVersion, enforce
}

// extractGateOverrides pulls the version-policy override flags out of an
// unparsed argument list. Script commands disable flag parsing, so the
// overrides arrive mixed into the arguments destined for the script; the
// remaining arguments are returned for verbatim forwarding.
func extractGateOverrides(args []string) (minVersion string, enforce *bool, rest []string) {
	rest = make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--min-macos-version" && i+1 < len(args):
			i++
			minVersion = args[i]
		case strings.HasPrefix(arg, "--min-macos-version="):
			minVersion = strings.TrimPrefix(arg, "--min-macos-version=")
		case arg == "--enforce-min-version":
			v := true
			enforce = &v
		case strings.HasPrefix(arg, "--enforce-min-version="):
			v := strings.TrimPrefix(arg, "--enforce-min-version=") != "false"
			enforce = &v
		default:
			rest = append(rest, arg)
		}
	}
	return minVersion, enforce, rest
}

func runBaselineGenerate(cmd *cobra.Command, args []string) error {
	return baselineRuleAction(cmd, "generate", func(a *app) error {
		path, err := a.baseline.Generate(args[0])
		if err != nil {
			return err
		}
		printResult(map[string]string{"manifest": path}, "Baseline written to %s\n", path)
		return nil
	})
}

func runBaselineTailor(cmd *cobra.Command, args []string) error {
	return baselineRuleAction(cmd, "tailor", func(a *app) error {
		path, err := a.baseline.Tailor(args[0])
		if err != nil {
			return err
		}
		printResult(map[string]string{"manifest": path}, "Tailored baseline written to %s\n", path)
		return nil
	})
}

func runBaselineApply(cmd *cobra.Command, args []string) error {
	return baselineRuleAction(cmd, "apply", func(a *app) error {
		id, err := a.baseline.Apply(cmd.Context(), args[0], applyDryRun)
		if err != nil {
			return err
		}
		printResult(map[string]string{"rollback_id": id}, "Applied. Rollback point: %s\n", id)
		return nil
	})
}

// baselineRuleAction runs the gate for a baseline action, then the action.
func baselineRuleAction(cmd *cobra.Command, action string, fn func(a *app) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	minVersion, enforce := gateOverrides(cmd)
	summary, ok := a.gate.Check(cmd.Context(), "baseline", action, minVersion, enforce)
	if summary != nil {
		printSummary(summary)
	}
	if !ok {
		os.Exit(exitFailure)
	}
	return fn(a)
}

func runBaselineListTags(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	tags, err := a.baseline.ListTags()
	if err != nil {
		return err
	}
	if jsonOutput {
		printJSON(map[string][]string{"tags": tags})
		return nil
	}
	for _, tag := range tags {
		fmt.Println(tag)
	}
	return nil
}

func runRollbackList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	points, err := a.rollback.List()
	if err != nil {
		return err
	}
	if jsonOutput {
		printJSON(points)
		return nil
	}
	if len(points) == 0 {
		fmt.Println("No rollback points.")
		return nil
	}
	for _, p := range points {
		fmt.Printf("%s  %s  %d backups  %s\n", p.RollbackID, p.CreatedAt, len(p.Backups), p.Description)
	}
	return nil
}

func runRollbackRestore(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.rollback.Restore(cmd.Context(), args[0], restoreDryRun)
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(result)
	} else {
		for _, o := range result.Outcomes {
			fmt.Printf("[%s] %s", o.Status, o.File)
			if o.Detail != "" {
				fmt.Printf(": %s", o.Detail)
			}
			fmt.Println()
		}
		fmt.Printf("Attempted %d, restored %d, skipped %d, failed %d\n",
			result.Attempted, result.Restored, result.Skipped, result.Failed)
	}
	if !result.Success() {
		os.Exit(exitFailure)
	}
	return nil
}

func runRollbackCleanup(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	keep := cleanupKeep
	if keep < 0 {
		keep = a.rollback.KeepCount()
	}
	removed, err := a.rollback.Cleanup(keep)
	if err != nil {
		return err
	}
	printResult(map[string]int{"removed": removed, "kept": keep},
		"Removed %d rollback points (keeping %d)\n", removed, keep)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if serveListen != "" {
		a.cfg.Server.Listen = serveListen
	}
	if serveAPIKey != "" {
		a.cfg.Server.APIKey = serveAPIKey
	}

	a.logger.Info("starting albator console",
		zap.String("version", version.Version),
		zap.String("listen", a.cfg.Server.Listen),
		zap.String("root_dir", a.cfg.RootDir))

	server, err := api.NewServer(a.cfg, api.Services{
		Preflight: a.evaluator,
		Rollback:  a.rollback,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		a.logger.Info("shutting down console...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Stop(ctx); err != nil {
			a.logger.Error("error during shutdown", zap.Error(err))
		}
	}()

	return server.Start()
}

func printSummary(summary *types.PreflightSummary) {
	if jsonOutput {
		out, err := preflight.ToJSON(summary)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to encode summary: %v\n", err)
			return
		}
		fmt.Println(out)
		return
	}
	fmt.Print(preflight.FormatReport(summary))
}

func createLogger(verbose bool) *zap.Logger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	level := zap.WarnLevel
	if verbose {
		level = zap.DebugLevel
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(os.Stderr), // Always log to stderr
		level,
	)

	return zap.New(core)
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode output: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

// printResult prints the JSON envelope or the formatted text, depending on
// --json-output.
func printResult(v interface{}, format string, args ...interface{}) {
	if jsonOutput {
		printJSON(v)
		return
	}
	fmt.Printf(format, args...)
}
