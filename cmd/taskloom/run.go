package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/spf13/cobra"

	"github.com/kmordal/taskloom/internal/api"
	"github.com/kmordal/taskloom/internal/config"
	"github.com/kmordal/taskloom/internal/engine"
	"github.com/kmordal/taskloom/internal/events"
	"github.com/kmordal/taskloom/internal/logging"
	"github.com/kmordal/taskloom/internal/process"
	"github.com/kmordal/taskloom/internal/scheduler"
	"github.com/kmordal/taskloom/internal/store"
	"github.com/kmordal/taskloom/internal/tui"
	"github.com/kmordal/taskloom/pkg/models"
)

var (
	runSeedFile  string
	runStepMode  bool
	runMaxAgents int64
	runUseTUI    bool
	runDBPath    string
	runPriority  int
	runAgent     string
	runProcess   string
	runLogFile   string
)

var runCmd = &cobra.Command{
	Use:   "run [instruction]",
	Short: "Run an instruction (or a seed file of tasks) to completion",
	Long: `Create one or more root tasks and drive them to completion.

A single instruction can be given as an argument, or a batch of tasks can
be loaded from a YAML seed file with --seed. With --step every task is
held for approval before dispatch; with --tui the interactive monitor is
shown instead of the event log.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runSeedFile, "seed", "", "YAML file with tasks to create")
	runCmd.Flags().BoolVar(&runStepMode, "step", false, "hold every task for operator approval before dispatch")
	runCmd.Flags().Int64Var(&runMaxAgents, "max-agents", 0, "override the concurrent agent ceiling")
	runCmd.Flags().BoolVar(&runUseTUI, "tui", false, "show the interactive monitor")
	runCmd.Flags().StringVar(&runDBPath, "db", "", "SQLite database path (default from config; empty runs in memory)")
	runCmd.Flags().IntVar(&runPriority, "priority", 0, "priority of the root task")
	runCmd.Flags().StringVar(&runAgent, "agent", "", "pre-assign an agent to the root task")
	runCmd.Flags().StringVar(&runProcess, "process", "", "preparation process for the root task (default neutral)")
	runCmd.Flags().StringVar(&runLogFile, "log", "", "write a debug log to this file")
}

func runRun(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && runSeedFile == "" {
		return fmt.Errorf("give an instruction or --seed <file>")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runStepMode {
		cfg.Scheduler.StepMode = true
	}
	if runMaxAgents > 0 {
		cfg.Scheduler.MaxConcurrentAgents = runMaxAgents
	}
	if runDBPath != "" {
		cfg.Store.Path = runDBPath
	}

	logger, err := logging.New(runLogFile)
	if err != nil {
		return err
	}
	defer logger.Close()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	emitter := events.NewEmitter(256)
	eng := engine.New(st, emitter, logger)
	registry := buildRegistry(eng, logger, cfg)

	client, err := api.NewClient(api.ClientConfig{
		Model:  anthropic.Model(cfg.Anthropic.Model),
		APIKey: cfg.Anthropic.APIKey,
	})
	if err != nil {
		return err
	}
	runner := api.NewRunner(client, eng, registry, logger)

	sched := scheduler.New(eng, registry, runner, logger, scheduler.Options{
		MaxAgents:    cfg.Scheduler.MaxConcurrentAgents,
		StepMode:     cfg.Scheduler.StepMode,
		PollInterval: cfg.Scheduler.PollInterval,
	})

	roots, err := createRootTasks(eng, args)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Live-reload of scheduler knobs from the config file.
	if path := configFilePath(); path != "" {
		watcher, err := config.Watch(path, func(updated *config.Config) {
			sched.SetMaxAgents(updated.Scheduler.MaxConcurrentAgents)
			sched.SetStepMode(updated.Scheduler.StepMode)
			logger.Log("[run] config reloaded from %s", path)
		})
		if err != nil {
			logger.Log("[run] config watch unavailable: %v", err)
		} else {
			defer watcher.Close()
		}
	}

	sched.Start(ctx)
	defer sched.Stop()

	if runUseTUI {
		monitor := tui.NewMonitor(eng, sched, emitter.Events(), cfg.TUI.RefreshRate)
		err := tui.Run(monitor)
		sched.Stop()
		emitter.Close()
		return err
	}

	printer := newEventPrinter(emitter.Events())
	printer.Start()

	results, waitErr := eng.WaitForTasks(ctx, roots, engine.WaitForever)

	// Nothing emits after Stop returns, so the printer can drain and exit.
	sched.Stop()
	emitter.Close()
	printer.Stop()

	if waitErr != nil {
		return waitErr
	}
	return reportResults(eng, results)
}

func openStore(cfg *config.Config) (store.TaskStore, error) {
	if cfg.Store.Path == "" {
		return store.NewMemoryStore(), nil
	}
	return store.OpenSQLite(cfg.Store.Path)
}

func buildRegistry(eng *engine.Engine, logger *logging.Logger, cfg *config.Config) *process.Registry {
	neutral := process.NewNeutral(eng, logger)
	direct := process.NewDirect(eng, logger)
	breakDown := process.NewBreakDown(eng, logger)
	endTask := process.NewEndTask(eng, logger)
	if cfg.Scheduler.ChildWait > 0 {
		neutral.SetChildWait(cfg.Scheduler.ChildWait)
		breakDown.SetChildWait(cfg.Scheduler.ChildWait)
		endTask.SetChildWait(cfg.Scheduler.ChildWait)
	}

	registry := process.NewRegistry()
	for _, p := range []process.Process{neutral, direct, breakDown, endTask} {
		if err := registry.Register(p); err != nil {
			panic(err)
		}
	}
	return registry
}

func createRootTasks(eng *engine.Engine, args []string) ([]int64, error) {
	var roots []int64
	if len(args) == 1 {
		task, err := eng.CreateTask(engine.TaskSpec{
			Instruction:     args[0],
			Priority:        runPriority,
			AssignedAgent:   runAgent,
			AssignedProcess: runProcess,
		})
		if err != nil {
			return nil, err
		}
		roots = append(roots, task.ID)
	}
	if runSeedFile != "" {
		seeded, err := seedTasks(eng, runSeedFile)
		if err != nil {
			return nil, err
		}
		roots = append(roots, seeded...)
	}
	return roots, nil
}

func reportResults(eng *engine.Engine, results []models.ProcessResult) error {
	failed := 0
	for _, res := range results {
		task, err := eng.GetTask(res.TaskID)
		if err != nil {
			return err
		}
		if res.Success() {
			printDone(task)
		} else {
			failed++
			printFailed(task)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d root tasks failed", failed, len(results))
	}
	return nil
}

func summarize(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
