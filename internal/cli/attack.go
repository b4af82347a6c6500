package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/drove/internal/attack/engine"
	"github.com/wesleyorama2/drove/internal/attack/logsink"
	"github.com/wesleyorama2/drove/internal/attack/scripted"
	"github.com/wesleyorama2/drove/internal/output"
	"github.com/wesleyorama2/drove/internal/report"
)

// progressInterval is how often the live display refreshes.
var progressInterval = time.Second

func newAttackCmd(g *globalFlags) *cobra.Command {
	f := &attackFlags{}
	cmd := &cobra.Command{
		Use:   "attack",
		Short: "Run an attack from an attack file",
		Long: `Hatch virtual users and run the task sets of an attack file against a host.
Flags override the values of the file.

Attack file mode:
  drove attack --config attack.yaml

Quick mode (every user requests the host root):
  drove attack --host http://localhost:8080 -u 10 -r 2 -t 1m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAttack(cmd, g, f)
		},
	}
	f.register(cmd.Flags())
	cmd.SetGlobalNormalizationFunc(legacyFlagNames)
	return cmd
}

func runAttack(cmd *cobra.Command, g *globalFlags, f *attackFlags) error {
	logger, err := newLogger(g.logLevel, g.logFormat, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer logger.Sync()

	reportFormat := report.Format("")
	if f.report != "" {
		if reportFormat, err = report.ParseFormat(f.reportFormat, f.report); err != nil {
			return err
		}
	}

	cfg, err := loadAttackConfig(cmd.Flags(), f)
	if err != nil {
		return err
	}
	sets, err := scripted.Build(cfg)
	if err != nil {
		return err
	}
	opts, err := scripted.Options(cfg)
	if err != nil {
		return err
	}

	engineOpts := []engine.Option{engine.WithLogger(logger)}
	if f.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		addr, shutdown, err := serveMetrics(f.metricsAddr, reg, logger)
		if err != nil {
			return err
		}
		defer shutdown()
		logger.Info("serving metrics", zap.String("addr", "http://"+addr+"/metrics"))
		engineOpts = append(engineOpts, engine.WithRegisterer(reg))
	}

	eng, err := engine.New(opts, engineOpts...)
	if err != nil {
		return err
	}
	eng.RegisterTaskSet(sets...)

	console := output.NewConsole(output.ConsoleConfig{
		Name:    cfg.Name,
		Host:    cfg.Host,
		Target:  cfg.Users,
		RunTime: opts.RunTime,
		Writer:  cmd.OutOrStdout(),
		Quiet:   f.quiet,
		NoColor: f.noColor,
	})
	console.PrintHeader()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := runWithProgress(ctx, eng, console)
	if err != nil {
		if errors.Is(err, logsink.ErrSinkCreate) {
			logger.Fatal("failed to create log file", zap.Error(err))
		}
		return err
	}
	console.PrintSummary(result)

	if f.report != "" {
		if err := report.Write(result, cfg.Name, reportFormat, f.report); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Report: %s\n", f.report)
	}
	return nil
}

// runWithProgress runs the attack and refreshes the console until it ends.
func runWithProgress(ctx context.Context, eng *engine.Engine, console *output.Console) (*engine.Result, error) {
	var result *engine.Result
	var runErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		result, runErr = eng.Run(ctx)
	}()

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return result, runErr
		case <-ticker.C:
			console.Update(eng.Progress())
		}
	}
}

// serveMetrics exposes reg on addr under /metrics. It returns the bound
// address and a function that stops the server.
func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) (string, func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
	return ln.Addr().String(), shutdown, nil
}

