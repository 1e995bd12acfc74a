package main

import (
	"context"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gitlab.com/tozd/go/errors"

	"graphclone/internal/config"
	"graphclone/internal/core"
	applog "graphclone/internal/log"
	"graphclone/internal/plan"
	"graphclone/internal/tracing"
	"graphclone/pkg/clone"
	"graphclone/pkg/domain"
)

var version = "dev"

// app holds what one command invocation builds. The store is opened on first
// use so commands that only read the plan never touch storage.
type app struct {
	out    io.Writer
	errOut io.Writer

	configFile string

	cfg      config.Config
	logger   zerolog.Logger
	plan     *plan.Plan
	model    *domain.Model
	registry *clone.Registry
	tracer   *tracing.Provider
	metrics  *prometheus.Registry
	expvar   *core.ExpvarRecorder
	recorder clone.Recorder
	store    core.Store
	svc      *core.Service
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{out: stdout, errOut: stderr}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if closeErr := a.close(ctx); err == nil {
		err = closeErr
	}
	return err
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "graphclone",
		Short:         "Clone persisted entity graphs",
		Long:          "graphclone copies a stored record together with the associations its plan declares, optionally persisting the whole copy atomically.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "config file (YAML)")
	flags.String("plan", "", "plan file declaring the model and clone specs")
	flags.String("storage", "", "storage driver: memory, sqlite, postgres or blob")
	flags.String("log-level", "", "log level")

	root.AddCommand(
		a.seedCmd(),
		a.cloneCmd(),
		a.showCmd(),
		a.listCmd(),
		a.typesCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	v, err := config.NewViper(a.configFile)
	if err != nil {
		return err
	}
	flags := cmd.Root().PersistentFlags()
	for key, flag := range map[string]string{
		"clone.plan":     "plan",
		"storage.driver": "storage",
		"log.level":      "log-level",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return errors.Errorf("bind --%s: %w", flag, err)
		}
	}
	return a.configure(cmd, v)
}

func (a *app) configure(cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.logger, err = applog.New(a.errOut, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	ctx := a.logger.WithContext(cmd.Context())
	cmd.SetContext(ctx)

	a.plan, err = plan.LoadFile(cfg.Clone.Plan)
	if err != nil {
		return err
	}
	a.model = a.plan.Model()
	a.registry, err = a.plan.Registry(plan.NewHooks(nil))
	if err != nil {
		return err
	}

	a.tracer, err = tracing.NewProvider(ctx, cfg.Tracing, a.errOut)
	if err != nil {
		return err
	}

	switch cfg.Metrics.Driver {
	case config.MetricsPrometheus:
		a.metrics = prometheus.NewRegistry()
		rec, err := core.NewPrometheusRecorder(a.metrics)
		if err != nil {
			return err
		}
		a.recorder = rec
	case config.MetricsExpvar:
		a.expvar = core.NewExpvarRecorder("")
		a.recorder = a.expvar
	}

	a.logger.Debug().
		Str("plan", cfg.Clone.Plan).
		Str("storage", cfg.Storage.Driver).
		Strs("types", typeNames(a.registry.Types())).
		Msg("graphclone configured")
	return nil
}

// service opens the configured store on first use.
func (a *app) service(ctx context.Context) (*core.Service, error) {
	if a.svc != nil {
		return a.svc, nil
	}
	store, err := core.OpenPersistentStore(ctx, a.cfg, a.model, a.plan.RulesEngine())
	if err != nil {
		return nil, errors.Errorf("open %s store: %w", a.cfg.Storage.Driver, err)
	}
	engine := clone.NewEngine(store, a.registry,
		clone.WithRecorder(a.recorder),
		clone.WithTracer(a.tracer.Tracer()),
		clone.WithMaxDepth(a.cfg.Clone.MaxDepth),
	)
	a.store = store
	a.svc = core.NewService(store, engine)
	return a.svc, nil
}

func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, errors.Errorf("close store: %w", err))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, errors.Errorf("flush traces: %w", err))
		}
	}
	if a.metrics != nil && a.cfg.Metrics.Textfile != "" {
		if err := prometheus.WriteToTextfile(a.cfg.Metrics.Textfile, a.metrics); err != nil {
			errs = append(errs, errors.Errorf("write metrics: %w", err))
		}
	}
	if a.expvar != nil {
		snap := a.expvar.Snapshot()
		a.logger.Debug().Interface("results", snap.Results).Interface("durations_ms", snap.DurationsMS).Msg("clone metrics")
	}
	return errors.Join(errs...)
}

func typeNames(types []domain.EntityType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}
