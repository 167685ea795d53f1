package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"

	"github.com/c360studio/semflow/agent"
	"github.com/c360studio/semflow/config"
	"github.com/c360studio/semflow/fabric"
	"github.com/c360studio/semflow/guideline"
	"github.com/c360studio/semflow/journal"
	"github.com/c360studio/semflow/macro"
	"github.com/c360studio/semflow/meta"
	"github.com/c360studio/semflow/telemetry"
)

// taskFile is the YAML shape accepted by the run command.
type taskFile struct {
	Tasks []taskSpec `yaml:"tasks"`
}

type taskSpec struct {
	ID       string         `yaml:"id"`
	Macro    string         `yaml:"macro"`
	Priority int            `yaml:"priority"`
	Owner    string         `yaml:"owner"`
	Payload  map[string]any `yaml:"payload"`
	// Query retrieves context packets for the task. An empty query
	// still stores empty context so the task executes.
	Query string `yaml:"query"`
}

func setupLogger(logLevel string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func loadConfig(configPath string, logger *slog.Logger) (*config.Config, error) {
	if configPath != "" {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}
	return config.NewLoader(logger).Load()
}

func buildTelemetry(ctx context.Context, cfg *config.Config, logger *slog.Logger) (telemetry.Sink, error) {
	sinks := telemetry.Multi{telemetry.NewLogSink(logger)}

	if cfg.Telemetry.PromNamespace != "" {
		prom, err := telemetry.NewPromSink(cfg.Telemetry.PromNamespace, prometheus.DefaultRegisterer)
		if err != nil {
			return nil, fmt.Errorf("create prometheus sink: %w", err)
		}
		sinks = append(sinks, prom)

		if cfg.Telemetry.PromListen != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			srv := &http.Server{Addr: cfg.Telemetry.PromListen, Handler: mux}
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("metrics endpoint failed", "error", err)
				}
			}()
			go func() {
				<-ctx.Done()
				_ = srv.Close()
			}()
			logger.Info("Metrics endpoint listening", "addr", cfg.Telemetry.PromListen)
		}
	}

	if cfg.Telemetry.NATSURL != "" {
		nats, err := telemetry.Connect(cfg.Telemetry.NATSURL, cfg.Telemetry.SubjectPrefix, logger)
		if err != nil {
			return nil, fmt.Errorf("connect NATS: %w", err)
		}
		sinks = append(sinks, nats)
		logger.Info("Publishing events to NATS", "url", cfg.Telemetry.NATSURL)
	}

	return sinks, nil
}

func buildAgents(cfg *config.Config, logger *slog.Logger, sink telemetry.Sink, reader *guideline.Reader) (*agent.Registry, error) {
	opts := []agent.Option{agent.WithMonitor(sink)}
	if reader != nil && cfg.Guideline.Root != "" {
		opts = append(opts, agent.WithGuidelines(reader, cfg.Guideline.Root, cfg.Guideline.Root))
	}

	reg := agent.NewRegistry(logger, opts...)
	builders := map[string]agent.Builder{
		agent.RolePlanner:    func() agent.Executor { return agent.PlannerExecutor },
		agent.RoleResearcher: func() agent.Executor { return agent.ResearcherExecutor },
		agent.RoleWriter:     func() agent.Executor { return agent.WriterExecutor },
		agent.RoleQA:         func() agent.Executor { return agent.QAExecutor },
	}
	for _, role := range []string{agent.RolePlanner, agent.RoleResearcher, agent.RoleWriter, agent.RoleQA} {
		agentCfg := agent.Config{
			ID:          role + "-1",
			Role:        role,
			Concurrency: cfg.RoleConcurrency(role),
			Timeout:     cfg.RoleTimeout(role),
		}
		if err := reg.Register(agentCfg, builders[role]); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func buildMacros(cfg *config.Config) (*macro.Registry, error) {
	macros := macro.NewRegistry()
	if cfg.Macros.Path != "" {
		if err := macros.LoadFile(cfg.Macros.Path); err != nil {
			return nil, fmt.Errorf("load macros: %w", err)
		}
		return macros, nil
	}

	builtins := []macro.Definition{
		{
			Name:        "full-pipeline",
			Description: "Plan, research, draft, and verify an artifact",
			Stages: []macro.Stage{
				{ID: "plan", Name: "Plan", Role: agent.RolePlanner},
				{ID: "gather", Name: "Gather", Role: agent.RoleResearcher, RetryLimit: 1},
				{ID: "draft", Name: "Draft", Role: agent.RoleWriter, RetryLimit: 1},
				{ID: "verify", Name: "Verify", Role: agent.RoleQA},
			},
		},
		{
			Name:          "knowledge-refresh",
			Description:   "Re-gather sources and verify the result",
			FallbackMacro: "full-pipeline",
			Stages: []macro.Stage{
				{ID: "gather", Name: "Gather", Role: agent.RoleResearcher, RetryLimit: 2},
				{ID: "verify", Name: "Verify", Role: agent.RoleQA},
			},
		},
	}
	for _, def := range builtins {
		if err := macros.Register(def); err != nil {
			return nil, err
		}
	}
	if err := macros.Finalize(); err != nil {
		return nil, err
	}
	return macros, nil
}

// ingestSources walks each directory and ingests markdown and text
// files as context packets.
func ingestSources(f *fabric.Fabric, dirs []string, logger *slog.Logger) error {
	for _, dir := range dirs {
		root, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("resolve ingest dir: %w", err)
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if strings.HasPrefix(d.Name(), ".") && path != root {
					return filepath.SkipDir
				}
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if ext != ".md" && ext != ".txt" {
				return nil
			}
			content, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read source %s: %w", path, err)
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				rel = path
			}
			f.Ingest(rel, string(content), nil)
			return nil
		})
		if err != nil {
			return fmt.Errorf("ingest %s: %w", dir, err)
		}
		logger.Info("Ingested context sources", "dir", dir)
	}
	return nil
}

func run(configPath, logLevel, tasksPath string, ingestDirs []string) error {
	logger := setupLogger(logLevel)

	cfg, err := loadConfig(configPath, logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	data, err := os.ReadFile(tasksPath)
	if err != nil {
		return fmt.Errorf("read tasks file: %w", err)
	}
	var batch taskFile
	if err := yaml.Unmarshal(data, &batch); err != nil {
		return fmt.Errorf("parse tasks file: %w", err)
	}
	if len(batch.Tasks) == 0 {
		return fmt.Errorf("no tasks in %s", tasksPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, err := buildTelemetry(ctx, cfg, logger)
	if err != nil {
		return err
	}

	ctxFabric := fabric.New(nil, nil, logger)
	if err := ingestSources(ctxFabric, ingestDirs, logger); err != nil {
		return err
	}

	reader := guideline.NewReader(logger)
	if cfg.Guideline.Watch && cfg.Guideline.Root != "" {
		watcher, err := guideline.NewWatcher(reader, cfg.Guideline.Root, cfg.Guideline.DebounceInterval, logger)
		if err != nil {
			return fmt.Errorf("create guideline watcher: %w", err)
		}
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("start guideline watcher: %w", err)
		}
		defer watcher.Stop()
	}

	agents, err := buildAgents(cfg, logger, sink, reader)
	if err != nil {
		return fmt.Errorf("build agents: %w", err)
	}

	macros, err := buildMacros(cfg)
	if err != nil {
		return err
	}

	orch := macro.NewOrchestrator(macros, agents, logger)
	orch.RetryDelay = cfg.Macros.RetryDelay

	var taskJournal meta.Journal
	if cfg.Journal.Path != "" {
		store, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate journal: %w", err)
		}
		taskJournal = store
	}

	state := meta.NewState(taskJournal, logger)
	orchestrator := meta.New(state, orch, sink, logger)
	orchestrator.Start(ctx)

	logger.Info("Semflow ready", "version", Version, "tasks", len(batch.Tasks), "context_packets", ctxFabric.Len())

	for _, spec := range batch.Tasks {
		if spec.Macro == "" {
			return fmt.Errorf("task %q has no macro", spec.ID)
		}
		def, err := macros.Get(spec.Macro)
		if err != nil {
			return err
		}

		task := meta.Task{
			ID:       spec.ID,
			Macro:    spec.Macro,
			Payload:  spec.Payload,
			Priority: spec.Priority,
			Owner:    spec.Owner,
		}
		// Retrieval visibility follows the first consuming role.
		role := def.Stages[0].Role
		matches := ctxFabric.Retrieve(role, spec.Query, cfg.Fabric.RetrieveLimit)
		packets := make([]fabric.Packet, 0, len(matches))
		for _, match := range matches {
			packets = append(packets, match.Packet)
		}

		if task.ID == "" {
			task.ID = uuid.NewString()
		}
		// Context must be in place before the drain loop can pick
		// the task up.
		orchestrator.SetContext(task.ID, packets)
		if _, err := orchestrator.Enqueue(ctx, task); err != nil {
			return fmt.Errorf("enqueue task %q: %w", task.ID, err)
		}
	}

	orchestrator.Wait()

	snapshot := orchestrator.State()
	out, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	fmt.Println(string(out))

	if snapshot.Metrics.Failed > 0 {
		return fmt.Errorf("%d of %d tasks failed", snapshot.Metrics.Failed, len(batch.Tasks))
	}
	return nil
}

func initUserConfig(logLevel string) error {
	logger := setupLogger(logLevel)
	return config.NewLoader(logger).EnsureUserConfig()
}

func listMacros(configPath, logLevel string) error {
	logger := setupLogger(logLevel)

	cfg, err := loadConfig(configPath, logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	macros, err := buildMacros(cfg)
	if err != nil {
		return err
	}

	for _, name := range macros.Names() {
		def, err := macros.Get(name)
		if err != nil {
			return err
		}
		fmt.Printf("%s (%d stages)", name, len(def.Stages))
		if def.FallbackMacro != "" {
			fmt.Printf(" fallback=%s", def.FallbackMacro)
		}
		fmt.Println()
	}
	return nil
}

func showHistory(configPath, logLevel, taskID string) error {
	logger := setupLogger(logLevel)

	cfg, err := loadConfig(configPath, logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Journal.Path == "" {
		return fmt.Errorf("journal.path is not configured")
	}

	store, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	task, err := store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	events, err := store.ListEvents(ctx, taskID)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(map[string]any{
		"task":   task,
		"events": events,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
