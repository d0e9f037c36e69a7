package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/yamakatsunamamugi/autoai/internal/adapter"
	"github.com/yamakatsunamamugi/autoai/internal/adapter/fileadapter"
	"github.com/yamakatsunamamugi/autoai/internal/config"
	"github.com/yamakatsunamamugi/autoai/internal/detect"
	"github.com/yamakatsunamamugi/autoai/internal/event"
	"github.com/yamakatsunamamugi/autoai/internal/logging"
	"github.com/yamakatsunamamugi/autoai/internal/orchestrator"
	"github.com/yamakatsunamamugi/autoai/internal/util"
)

var runCmd = &cobra.Command{
	Use:   "run <prompt>",
	Short: "Run a task and wait for its result",
	Long: `Run submits a prompt to the configured session, waits for completion
using the selected detection mode, and prints the extracted output.

Examples:
  # Run with the configured defaults
  autoai run "Summarize the attached report"

  # Artifact mode against a specific session directory
  autoai run -m artifact -w ./work/claude "Write a design doc"

  # Pass adapter options
  autoai run -o model=opus -o feature=research "Deep dive on X"`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var (
	runSessionKey string
	runMode       string
	runWorkDir    string
	runOptions    []string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runSessionKey, "session", "s", "default", "Session key the task runs on")
	runCmd.Flags().StringVarP(&runMode, "mode", "m", "", "Completion mode: streaming, artifact, multiphase (default from config)")
	runCmd.Flags().StringVarP(&runWorkDir, "work-dir", "w", "", "Session working directory (default from config)")
	runCmd.Flags().StringArrayVarP(&runOptions, "option", "o", nil, "Adapter option as key=value (repeatable)")
}

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	modeStr := runMode
	if modeStr == "" {
		modeStr = cfg.Session.Mode
	}
	mode, err := detect.ParseMode(modeStr)
	if err != nil {
		return err
	}

	opts, err := parseOptions(runOptions)
	if err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}
	workDir := runWorkDir
	if workDir == "" {
		workDir = filepath.Join(cfg.Session.ResolveWorkDir(cwd), runSessionKey)
	}
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("failed to create working directory: %w", err)
	}

	logger := logging.NopLogger()
	if cfg.Logging.Enabled {
		logger, err = logging.NewLogger(workDir, cfg.Logging.Level, cfg.Logging.RotationSettings())
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer logger.Close()
	}

	fa := fileadapter.New(workDir, mode, fileadapter.WithLogger(logger))
	if err := fa.Start(); err != nil {
		// Sampling falls back to direct stats; not fatal.
		logger.Warn("directory watcher unavailable", "error", err.Error())
	}
	defer fa.Close()

	bus := event.NewBus()
	orch := orchestrator.New(cfg.OrchestratorSettings(), fa, fa,
		orchestrator.WithLogger(logger),
		orchestrator.WithBus(bus),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	task := orchestrator.NewTask(runSessionKey, args[0], mode)
	task.Options = opts

	fmt.Printf("%s task %s on session %s (%s mode): %s\n",
		dimStyle.Render(">"), task.ID, runSessionKey, mode,
		dimStyle.Render(util.TruncateString(task.Input, 60)))

	start := time.Now()
	result := orch.RunTask(ctx, task)
	printResult(result, time.Since(start))

	if !result.Success {
		os.Exit(1)
	}
	return nil
}

// parseOptions splits repeated key=value flags into adapter options.
func parseOptions(pairs []string) (adapter.Options, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	opts := make(adapter.Options, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid option %q: expected key=value", pair)
		}
		opts[key] = value
	}
	return opts, nil
}

func printResult(result orchestrator.TaskResult, elapsed time.Duration) {
	switch {
	case result.Success && !result.Partial:
		fmt.Printf("%s completed in %s (%d attempts)\n",
			okStyle.Render("●"), elapsed.Round(time.Second), result.Attempts)
	case result.Success:
		fmt.Printf("%s completed with partial output in %s (%d attempts)\n",
			warnStyle.Render("●"), elapsed.Round(time.Second), result.Attempts)
	default:
		fmt.Printf("%s failed after %s: %s (%d attempts)\n",
			failStyle.Render("●"), elapsed.Round(time.Second), result.ErrorType, result.Attempts)
		if result.Err != nil {
			fmt.Println(dimStyle.Render("  " + result.Err.Error()))
		}
		return
	}

	fmt.Println()
	fmt.Println(result.Output)
}
