package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"netmend/internal/api"
	"netmend/internal/config"
	"netmend/internal/engine"
	"netmend/internal/metrics"
	"netmend/internal/netinfo"
	"netmend/internal/probe"
	"netmend/internal/quality"
	"netmend/internal/status"
)

const usage = `netmend - client network resilience daemon

Usage:
  netmend init --config <path> [--health-url <url>] [--stun <servers>]
  netmend run --config <path> [--listen <addr>]
  netmend check --config <path>
  netmend quality --config <path>
  netmend status [--addr <host:port>]
  netmend stats --config <path> [--window 5m]
  netmend export csv --config <path> --out <file>
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "-h", "--help", "help":
		fmt.Print(usage)
	case "init":
		handleInit(os.Args[2:])
	case "run":
		handleRun(os.Args[2:])
	case "check":
		handleCheck(os.Args[2:])
	case "quality":
		handleQuality(os.Args[2:])
	case "status":
		handleStatus(os.Args[2:])
	case "stats":
		handleStats(os.Args[2:])
	case "export":
		handleExport(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func handleInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	healthURL := fs.String("health-url", "", "health probe URL")
	stunList := fs.String("stun", "", "comma-separated STUN servers")
	listen := fs.String("listen", "", "status API listen address")
	_ = fs.Parse(args)

	if *configPath == "" {
		fatal(fmt.Errorf("--config is required"))
	}
	if _, err := os.Stat(*configPath); err == nil {
		fatal(fmt.Errorf("%s already exists", *configPath))
	}

	var cfg config.Config
	if *healthURL != "" {
		cfg.HealthURL = *healthURL
	}
	if *stunList != "" {
		cfg.Checker = "stun"
		cfg.STUNServers = splitList(*stunList)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	config.ApplyDefaults(&cfg)
	if err := config.Validate(cfg); err != nil {
		fatal(err)
	}
	if err := config.Save(*configPath, cfg); err != nil {
		fatal(err)
	}
	fmt.Fprintf(os.Stdout, "wrote %s\n", *configPath)
}

func handleRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	listen := fs.String("listen", "", "status API listen address")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	config.ApplyDefaults(&cfg)
	if err := config.Validate(cfg); err != nil {
		fatal(err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	eng, err := engine.New(cfg, engine.WithLogger(logger))
	if err != nil {
		fatal(err)
	}
	eng.Start()
	defer eng.Stop()
	eng.NotifyConnectionType(netinfo.Detect())

	if cfg.Listen != "" {
		srv := status.NewServer(cfg.Listen, eng, logger)
		go func() {
			if err := srv.ListenAndServe(); err != nil {
				logger.Error("status api stopped", "err", err)
			}
		}()
	}

	logger.Info("netmend running", "checker", cfg.Checker, "listen", cfg.Listen)
	waitForSignal()
	logger.Info("shutting down")
}

func handleCheck(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	config.ApplyDefaults(&cfg)
	if err := config.Validate(cfg); err != nil {
		fatal(err)
	}

	checker, err := buildChecker(cfg)
	if err != nil {
		fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.HealthTimeout())
	defer cancel()

	rtt, err := checker.Check(ctx)
	if err != nil {
		fmt.Fprintf(os.Stdout, "offline: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, "online rtt=%.2fms checker=%s\n",
		float64(rtt.Microseconds())/1000.0, checker.Name())
}

func handleQuality(args []string) {
	fs := flag.NewFlagSet("quality", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	config.ApplyDefaults(&cfg)
	if err := config.Validate(cfg); err != nil {
		fatal(err)
	}

	checker, err := buildChecker(cfg)
	if err != nil {
		fatal(err)
	}
	sampler := quality.NewSampler(checker, nil, cfg.BandwidthFallbackMbps, slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 3*cfg.HealthTimeout())
	defer cancel()

	q := sampler.Measure(ctx)
	fmt.Fprintf(os.Stdout, "score=%d latency=%.2fms jitter=%.2fms bandwidth=%.1fMbps\n",
		q.Score, q.LatencyMs, q.JitterMs, q.BandwidthMbps)
}

func handleStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:7070", "status API address")
	_ = fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := api.NewClient("http://" + *addr)
	st, err := client.Status(ctx)
	if err != nil {
		fatal(err)
	}
	fmt.Fprintf(os.Stdout, "state=%s type=%s score=%d pending=%d\n",
		st.State, st.ConnectionType, st.Quality.Score, st.Pending)
	fmt.Fprintf(os.Stdout, "disconnections=%d recoveries=%d replayed=%d avg_offline=%.0fms\n",
		st.Metrics.TotalDisconnections, st.Metrics.SuccessfulRecoveries,
		st.Metrics.RequestsReplayed, st.Metrics.AverageOfflineDurationMs)
}

func handleStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	window := fs.Duration("window", 5*time.Minute, "summary window")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	config.ApplyDefaults(&cfg)
	if cfg.MetricsPath == "" {
		fatal(fmt.Errorf("metrics_path is not configured"))
	}

	samples, err := metrics.ReadCSV(cfg.MetricsPath)
	if err != nil {
		fatal(err)
	}
	summary := metrics.Summarize(samples, time.Now().Add(-*window))
	if summary.Count == 0 {
		fmt.Fprintln(os.Stdout, "no samples in window")
		return
	}
	fmt.Fprintf(os.Stdout, "samples=%d window=%s\n", summary.Count, *window)
	fmt.Fprintf(os.Stdout, "latency avg=%.2fms p95=%.2fms min=%.2fms max=%.2fms\n",
		summary.AvgLatencyMs, summary.P95LatencyMs, summary.MinLatencyMs, summary.MaxLatencyMs)
	fmt.Fprintf(os.Stdout, "jitter avg=%.2fms score avg=%.1f\n",
		summary.AvgJitterMs, summary.AvgScore)
}

func handleExport(args []string) {
	if len(args) == 0 || args[0] != "csv" {
		fmt.Fprintln(os.Stderr, "export subcommand required: csv")
		os.Exit(2)
	}
	fs := flag.NewFlagSet("export csv", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	out := fs.String("out", "", "output file")
	_ = fs.Parse(args[1:])

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	config.ApplyDefaults(&cfg)
	if cfg.MetricsPath == "" {
		fatal(fmt.Errorf("metrics_path is not configured"))
	}
	if *out == "" {
		fatal(fmt.Errorf("--out is required"))
	}

	samples, err := metrics.ReadCSV(cfg.MetricsPath)
	if err != nil {
		fatal(err)
	}
	file, err := os.Create(*out)
	if err != nil {
		fatal(err)
	}
	defer file.Close()
	if err := metrics.WriteCSV(file, samples); err != nil {
		fatal(err)
	}
	fmt.Fprintf(os.Stdout, "wrote %d samples to %s\n", len(samples), *out)
}

func buildChecker(cfg config.Config) (probe.Checker, error) {
	switch cfg.Checker {
	case "stun":
		return probe.NewSTUNChecker(cfg.STUNServers, cfg.HealthTimeout()), nil
	default:
		return probe.NewHTTPChecker(cfg.HealthURL, cfg.HealthTimeout()), nil
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Config{}, nil
	}
	return config.Load(path)
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func waitForSignal() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	<-signals
}

func fatal(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
