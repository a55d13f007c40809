package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hochfrequenz/worksim/internal/batch"
	"github.com/hochfrequenz/worksim/internal/config"
	"github.com/hochfrequenz/worksim/internal/dispatch"
	"github.com/hochfrequenz/worksim/internal/domain"
	"github.com/hochfrequenz/worksim/internal/history"
	"github.com/hochfrequenz/worksim/internal/llm"
	"github.com/hochfrequenz/worksim/internal/notify"
	"github.com/hochfrequenz/worksim/internal/observer"
	"github.com/hochfrequenz/worksim/internal/persona"
	"github.com/hochfrequenz/worksim/internal/policy"
	"github.com/hochfrequenz/worksim/internal/retry"
	"github.com/hochfrequenz/worksim/internal/runstore"
	"github.com/hochfrequenz/worksim/internal/sim"
	"github.com/hochfrequenz/worksim/internal/vclock"
)

var (
	runPersona     string
	runCompression float64
	runSeed        int64
	runDryRun      bool
	runNoAdvisory  bool
	listPersona    string
	listStatus     string
	listLimit      int
)

func init() {
	// run command
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run one simulated workday",
		RunE:  runRun,
	}
	runCmd.Flags().StringVar(&runPersona, "persona", "", "persona file (overrides config)")
	runCmd.Flags().Float64Var(&runCompression, "compression", 0, "time compression factor (overrides config)")
	runCmd.Flags().Int64Var(&runSeed, "seed", 0, "fallback strategy seed (0 = from current time)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "decide and record without contacting an executor")
	runCmd.Flags().BoolVar(&runNoAdvisory, "no-advisory", false, "use only the heuristic strategy")
	rootCmd.AddCommand(runCmd)

	// validate command
	validateCmd := &cobra.Command{
		Use:   "validate PERSONA",
		Short: "Validate a persona file",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	}
	rootCmd.AddCommand(validateCmd)

	// runs command
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		RunE:  runRuns,
	}
	runsCmd.Flags().StringVar(&listPersona, "persona", "", "filter by persona name")
	runsCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	runsCmd.Flags().IntVar(&listLimit, "limit", 20, "maximum runs to list")
	rootCmd.AddCommand(runsCmd)

	// summary command
	summaryCmd := &cobra.Command{
		Use:   "summary RUN",
		Short: "Summarize one run and its action trail",
		Args:  cobra.ExactArgs(1),
		RunE:  runSummary,
	}
	rootCmd.AddCommand(summaryCmd)

	// daemon command
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run scheduled workdays unattended",
		RunE:  runDaemon,
	}
	rootCmd.AddCommand(daemonCmd)
}

func loadConfig() (*config.Config, error) {
	return config.LoadWithLocalFallback(configPath)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	personaPath := runPersona
	if personaPath == "" {
		personaPath = cfg.Simulation.PersonaPath
	}
	if personaPath == "" {
		return fmt.Errorf("no persona given: use --persona or set simulation.persona_path")
	}

	compression := runCompression
	if compression == 0 {
		compression = cfg.Simulation.Compression
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, err := runSimulation(ctx, cfg, simParams{
		personaPath: personaPath,
		compression: compression,
		seed:        runSeed,
		dryRun:      runDryRun,
		noAdvisory:  runNoAdvisory,
		notify:      true,
	})
	if stats != nil {
		fmt.Printf("\n%s workday %s\n", stats.SimStart.Format("2006-01-02"), stats.Status)
		fmt.Printf("  %s\n", stats.OneLine())
		if b := stats.Breakdown(); b != "" {
			fmt.Print(b)
		}
	}
	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// simParams carries one run's effective settings after flag and config
// merging.
type simParams struct {
	personaPath string
	compression float64
	seed        int64
	dryRun      bool
	noAdvisory  bool
	notify      bool
}

func runSimulation(ctx context.Context, cfg *config.Config, params simParams) (*sim.Stats, error) {
	p, err := persona.Load(params.personaPath)
	if err != nil {
		return nil, err
	}

	clock, err := buildClock(cfg.Simulation, p, params.compression)
	if err != nil {
		return nil, err
	}

	seed := params.seed
	if seed == 0 {
		seed = cfg.Simulation.Seed
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	strategy := buildStrategy(ctx, cfg, seed, params.noAdvisory)
	transport, err := buildTransport(cfg.Dispatch, p, params.dryRun)
	if err != nil {
		return nil, err
	}
	defer transport.Close()

	store, err := openStore(cfg.Storage)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	runID := uuid.NewString()
	if err := store.CreateRun(runstore.Run{
		ID:          runID,
		Persona:     p.Name,
		WorkerID:    p.WorkerID,
		Compression: clock.Factor(),
		SimStart:    clock.SimStart(),
		SimEnd:      clock.EndOfDay(),
	}); err != nil {
		return nil, err
	}
	log.Printf("run %s: %s at %gx", runID, p.Name, clock.Factor())

	loop, err := sim.New(sim.Config{
		Persona:   p,
		Clock:     clock,
		Strategy:  strategy,
		Transport: transport,
		History:   history.New(),
		OnEntry: func(e domain.HistoryEntry) {
			if err := store.AppendAction(runID, e); err != nil {
				log.Printf("persist action: %v", err)
			}
		},
	})
	if err != nil {
		return nil, err
	}

	stats, runErr := loop.Run(ctx)

	if err := store.FinishRun(runID, stats.Status, stats.Total(), stats.Failed); err != nil {
		log.Printf("finish run: %v", err)
	}

	if params.notify {
		notifier := buildNotifier(cfg.Notifications)
		n := notify.RunFinished(p.Name, runID, stats.Status, stats.Total(), stats.Failed, stats.RealDuration())
		if err := notifier.Send(n); err != nil {
			log.Printf("notify: %v", err)
		}
	}

	return stats, runErr
}

// buildClock maps the persona's work schedule onto today's date. The config
// day window, when set, overrides the schedule.
func buildClock(simCfg config.SimulationConfig, p *persona.Persona, compression float64) (*vclock.Clock, error) {
	if compression <= 0 {
		compression = 60
	}

	start := p.Schedule.WorkStart
	end := p.Schedule.WorkEnd
	if simCfg.DayStart != "" {
		var err error
		if start, err = vclock.ParseTimeOfDay(simCfg.DayStart); err != nil {
			return nil, fmt.Errorf("simulation.day_start: %w", err)
		}
	}
	if simCfg.DayEnd != "" {
		var err error
		if end, err = vclock.ParseTimeOfDay(simCfg.DayEnd); err != nil {
			return nil, fmt.Errorf("simulation.day_end: %w", err)
		}
	}

	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
	return vclock.New(midnight.Add(start), midnight.Add(end), compression)
}

func buildStrategy(ctx context.Context, cfg *config.Config, seed int64, noAdvisory bool) policy.Strategy {
	fallback := policy.NewFallback(policy.FallbackConfig{
		RepeatWindow:    cfg.Policy.RepeatWindow,
		RepeatThreshold: cfg.Policy.RepeatThreshold,
	}, seed)

	var advisory policy.Strategy
	if cfg.Advisory.Enabled && !noAdvisory {
		client, err := llm.NewGeminiClient(ctx, llm.GeminiConfig{
			Model:     cfg.Advisory.Model,
			MaxTokens: int32(cfg.Advisory.MaxTokens),
		})
		if err != nil {
			log.Printf("advisory unavailable, heuristic only: %v", err)
		} else {
			advisory = policy.NewAdvisory(client, policy.AdvisoryConfig{})
		}
	}

	return policy.NewComposite(advisory, fallback, policy.CompositeConfig{
		AdvisoryTimeout: time.Duration(cfg.Advisory.TimeoutSeconds) * time.Second,
		AdvisoryRetries: cfg.Advisory.Retries,
		CoolDown:        time.Duration(cfg.Advisory.CooldownSeconds) * time.Second,
	})
}

func buildTransport(dc config.DispatchConfig, p *persona.Persona, dryRun bool) (sim.Transport, error) {
	if dryRun {
		return dispatch.Loopback{}, nil
	}

	workerID := p.WorkerID
	if workerID == "" || workerID == "default" {
		if dc.WorkerID != "" {
			workerID = dc.WorkerID
		}
	}

	reconnect := retry.Default()
	if dc.ReconnectAttempts > 0 {
		reconnect.MaxAttempts = dc.ReconnectAttempts
	}

	dcfg := dispatch.Config{
		URL:             dc.URL,
		WorkerID:        workerID,
		DialTimeout:     time.Duration(dc.DialTimeoutSeconds) * time.Second,
		ResponseTimeout: time.Duration(dc.ResponseTimeoutSeconds) * time.Second,
		Reconnect:       reconnect,
	}
	if dc.Shell != nil {
		dcfg.Shell = &dispatch.ShellConfig{
			Host:    dc.Shell.Host,
			User:    dc.Shell.User,
			Port:    dc.Shell.Port,
			KeyPath: dc.Shell.KeyPath,
			Command: dc.Shell.Command,
			Timeout: time.Duration(dc.Shell.TimeoutSeconds) * time.Second,
		}
	}
	return dispatch.New(dcfg)
}

func openStore(sc config.StorageConfig) (*runstore.Store, error) {
	if dir := filepath.Dir(sc.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return runstore.New(sc.DatabasePath)
}

func buildNotifier(nc config.NotificationsConfig) notify.Notifier {
	return notify.NewMultiNotifier(
		notify.NewDesktopNotifier(nc.Desktop),
		notify.NewSlackNotifier(nc.SlackWebhook),
	)
}

func runValidate(cmd *cobra.Command, args []string) error {
	p, err := persona.Load(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("%s (%s), worker %s\n", p.Name, p.Role, p.WorkerID)
	fmt.Printf("  hours %s, lunch %s\n",
		formatWindow(p.Schedule.WorkHours()), formatWindow(p.Schedule.Lunch))

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "  ACTIVITY\tWEIGHT\tDURATION\tTARGETS")
	for _, a := range p.Activities {
		fmt.Fprintf(w, "  %s\t%.1f\t%d-%d min\t%d\n", a.Kind, a.Weight, a.MinDuration, a.MaxDuration, len(a.Targets))
	}
	w.Flush()

	fmt.Println("persona is valid")
	return nil
}

func formatWindow(w vclock.Window) string {
	if w.Start == 0 && w.End == 0 {
		return "none"
	}
	base := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	return fmt.Sprintf("%s-%s", base.Add(w.Start).Format("15:04"), base.Add(w.End).Format("15:04"))
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(runstore.ListOptions{
		Persona: listPersona,
		Status:  domain.RunStatus(listStatus),
		Limit:   listLimit,
	})
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tPERSONA\tSTATUS\tSTARTED\tACTIONS\tFAILED")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
			shortID(r.ID), r.Persona, r.Status, humanize.Time(r.StartedAt), r.Total, r.Failed)
	}
	return w.Flush()
}

func runSummary(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := resolveRun(store, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("%s: %s on worker %s, %gx compression, started %s\n",
		shortID(run.ID), run.Persona, run.WorkerID, run.Compression, humanize.Time(run.StartedAt))
	fmt.Printf("status %s, %d actions, %d failed\n\n", run.Status, run.Total, run.Failed)

	actions, err := store.ListActions(run.ID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tTARGET\tMIN\tSOURCE\tRESULT")
	for _, e := range actions {
		result := "ok"
		if !e.Result.Success {
			result = e.Result.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			e.SimTime.Format("15:04"), e.Request.Kind, e.Request.Target,
			e.Request.DurationMin, e.Request.Source, result)
	}
	return w.Flush()
}

// resolveRun accepts a full run id or an unambiguous prefix.
func resolveRun(store *runstore.Store, id string) (*runstore.Run, error) {
	if run, err := store.GetRun(id); err == nil {
		return run, nil
	}

	runs, err := store.ListRuns(runstore.ListOptions{})
	if err != nil {
		return nil, err
	}
	var match *runstore.Run
	for _, r := range runs {
		if len(id) <= len(r.ID) && r.ID[:len(id)] == id {
			if match != nil {
				return nil, fmt.Errorf("run id %s is ambiguous", id)
			}
			match = r
		}
	}
	if match == nil {
		return nil, fmt.Errorf("run %s not found", id)
	}
	return match, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Daemon.BatchConfigPath == "" {
		return fmt.Errorf("daemon.batch_config_path is not set")
	}

	schedule, err := batch.LoadScheduleConfig(cfg.Daemon.BatchConfigPath)
	if err != nil {
		return err
	}
	if len(schedule.Runs) == 0 {
		return fmt.Errorf("no scheduled runs in %s", cfg.Daemon.BatchConfigPath)
	}

	scheduler, err := batch.NewScheduler(schedule.Runs)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Daemon.WatchPersonas {
		watcher, err := observer.NewPersonaWatcher(func(files []string) {
			log.Printf("persona files changed, next runs pick them up: %v", files)
		})
		if err != nil {
			return err
		}
		defer watcher.Stop()
		for _, rc := range schedule.Runs {
			if err := watcher.AddDir(filepath.Dir(rc.Persona)); err != nil {
				log.Printf("watch %s: %v", rc.Persona, err)
			}
		}
		watcher.Start(ctx)
	}

	for _, name := range scheduler.ListRuns() {
		log.Printf("scheduled %s, next run %s", name, scheduler.NextRun(name).Format(time.RFC1123))
	}

	go scheduler.Start(func(rc batch.RunConfig) error {
		log.Printf("starting scheduled run %s", rc.Name)
		_, err := runSimulation(ctx, cfg, simParams{
			personaPath: rc.Persona,
			compression: rc.Compression,
			seed:        rc.Seed,
			notify:      rc.NotifyOnComplete,
		})
		return err
	})

	<-ctx.Done()
	scheduler.Stop()
	log.Println("daemon stopped")
	return nil
}
