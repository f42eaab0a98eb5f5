package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Minei3oat/firegex/pkg/blockingqueue"
	"github.com/Minei3oat/firegex/pkg/capture"
	"github.com/Minei3oat/firegex/pkg/config"
	"github.com/Minei3oat/firegex/pkg/exporter"
	"github.com/Minei3oat/firegex/pkg/filter"
	"github.com/Minei3oat/firegex/pkg/hexcodec"
	"github.com/Minei3oat/firegex/pkg/pipeline"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cmd := rootCommand()
	if err := cmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("Error executing command")
	}
}

func rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "firegex",
		Short:         "Hand captured packets to processing workers through a bounded queue",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logLevelStr, _ := cmd.Flags().GetString("log-level")
			logLevel, err := zerolog.ParseLevel(logLevelStr)
			if err != nil {
				return errors.Wrap(err, "invalid log level")
			}

			zerolog.SetGlobalLevel(logLevel)
			return nil
		},
	}

	cmd.PersistentFlags().StringP("log-level", "l", "info", "loglevel")

	cmd.AddCommand(runCommand())
	cmd.AddCommand(unhexCommand())

	return cmd
}

func runCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Capture packets and process them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, cmd.InOrStdin())
		},
	}

	defaults := config.Default()
	cmd.Flags().StringP("config", "c", "", "YAML config file")
	cmd.Flags().Int("capacity", defaults.Queue.Capacity, "queue capacity, keep at or below the kernel nfqueue length")
	cmd.Flags().String("backend", defaults.Queue.Backend, "queue backend: cond or pipe")
	cmd.Flags().StringP("source", "s", defaults.Capture.Source, "capture source: hex (stdin) or mock")
	cmd.Flags().Duration("interval", defaults.Capture.Interval, "mock source packet interval")
	cmd.Flags().IntP("workers", "w", defaults.Workers, "number of processing workers")
	cmd.Flags().StringP("metrics", "m", defaults.Server.ListenAddr, "HTTP address to expose metrics and the packet stream on")
	cmd.Flags().Uint16P("port", "p", defaults.Filter.ServicePort, "port of the protected service, 0 matches every packet as client to server")
	cmd.Flags().StringArrayP("filter", "f", nil, "filter rule <C|S|B><1 case sensitive|0><hex regex>, repeatable")

	return cmd
}

// loadConfig reads --config when given and applies every flag the user set
// explicitly on top of it.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	flags := cmd.Flags()

	cfg := config.Default()
	if path, _ := flags.GetString("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}

	if flags.Changed("capacity") {
		cfg.Queue.Capacity, _ = flags.GetInt("capacity")
	}
	if flags.Changed("backend") {
		cfg.Queue.Backend, _ = flags.GetString("backend")
	}
	if flags.Changed("source") {
		cfg.Capture.Source, _ = flags.GetString("source")
	}
	if flags.Changed("interval") {
		cfg.Capture.Interval, _ = flags.GetDuration("interval")
	}
	if flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("metrics") {
		cfg.Server.ListenAddr, _ = flags.GetString("metrics")
	}
	if flags.Changed("port") {
		cfg.Filter.ServicePort, _ = flags.GetUint16("port")
	}
	if flags.Changed("filter") {
		rules, _ := flags.GetStringArray("filter")
		for _, s := range rules {
			r, err := filter.ParseRule(s)
			if err != nil {
				return cfg, errors.Wrapf(err, "--filter %q", s)
			}
			cfg.Filter.Add(r)
		}
	}

	return cfg, cfg.Validate()
}

func newSource(cfg config.Config, stdin io.Reader, reg prometheus.Registerer) (capture.Source, error) {
	kind, err := capture.ParseKind(cfg.Capture.Source)
	if err != nil {
		return nil, err
	}

	switch kind {
	case capture.KindHex:
		src := capture.NewHexSource(stdin)
		err := exporter.RegisterCounterFunc(reg,
			"firegex_capture_malformed_total",
			"Number of captured lines that were not valid hex",
			src.Malformed,
		)
		return src, err
	default:
		return &capture.MockSource{Interval: cfg.Capture.Interval}, nil
	}
}

func run(ctx context.Context, cfg config.Config, stdin io.Reader) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	exp := exporter.New()
	if err := exp.Register(reg); err != nil {
		return errors.Wrap(err, "register exporter")
	}

	backend, err := blockingqueue.ParseBackend(cfg.Queue.Backend)
	if err != nil {
		return err
	}

	src, err := newSource(cfg, stdin, reg)
	if err != nil {
		return err
	}

	set, err := cfg.Filter.Build()
	if err != nil {
		return errors.Wrap(err, "build filter")
	}
	log.Info().Int("rules", set.Len()).Uint16("port", cfg.Filter.ServicePort).Msg("filter loaded")

	hub := pipeline.NewHub()
	if err := exporter.RegisterCounterFunc(reg,
		"firegex_stream_dropped_total",
		"Number of packets not delivered to a slow stream subscriber",
		hub.Dropped,
	); err != nil {
		return err
	}

	p, err := pipeline.New(pipeline.Options{
		Capacity:   cfg.Queue.Capacity,
		Backend:    backend,
		Workers:    cfg.Workers,
		Hostname:   cfg.Capture.Hostname,
		Registerer: reg,
		Exporter:   exp,
		Hub:        hub,
		Filter:     set,
	})
	if err != nil {
		return err
	}
	defer p.Close()

	g, ctx := errgroup.WithContext(ctx)
	serverCtx, stopServer := context.WithCancel(ctx)
	g.Go(func() error {
		return pipeline.NewServer(hub, reg).ListenAndServe(serverCtx, cfg.Server.ListenAddr)
	})
	g.Go(func() error {
		defer stopServer()
		err := p.Run(ctx, src)
		log.Info().Msg("capture finished")
		return err
	})

	return g.Wait()
}

func unhexCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unhex HEX",
		Short: "Decode a hex string and write the raw bytes to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := hexcodec.DecodeString(args[0])
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(raw)
			return err
		},
	}
}
