// Command subnotif-agent runs a subscription agent over an in-memory
// datastore.
//
// The agent accepts control sessions on a TCP port, serves event stream
// and datastore push subscriptions, and optionally exports Prometheus
// metrics, writes a capture log and advertises itself over mDNS.
//
// Usage:
//
//	subnotif-agent [flags]
//
// Flags:
//
//	-config string     YAML configuration file
//	-listen string     Control session address (default ":8830")
//	-metrics string    Prometheus listen address (empty disables)
//	-capture string    Capture log file (.mlog)
//	-log-level string  Log level: debug, info, warn, error (default "info")
//	-console           Run the interactive console
//	-mdns              Advertise the agent over mDNS
//	-browse            Browse for agents on the local network and exit
//
// Examples:
//
//	# Start with defaults and the console
//	subnotif-agent -console
//
//	# Start from a config file with debug logging and a capture log
//	subnotif-agent -config /etc/subnotif/agent.yaml -log-level debug -capture agent.mlog
//
//	# List agents advertised on the network
//	subnotif-agent -browse
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AdianComits/netopeer2/cmd/subnotif-agent/console"
	"github.com/AdianComits/netopeer2/pkg/agent"
	"github.com/AdianComits/netopeer2/pkg/config"
	"github.com/AdianComits/netopeer2/pkg/datastore"
	"github.com/AdianComits/netopeer2/pkg/discovery"
	caplog "github.com/AdianComits/netopeer2/pkg/log"
	"github.com/AdianComits/netopeer2/pkg/metrics"
	"github.com/AdianComits/netopeer2/pkg/push"
	"github.com/AdianComits/netopeer2/pkg/stream"
	"github.com/AdianComits/netopeer2/pkg/subscription"
)

var (
	configFile = flag.String("config", "", "YAML configuration file")
	listen     = flag.String("listen", "", "Control session address (overrides config)")
	metricsAt  = flag.String("metrics", "", "Prometheus listen address (overrides config)")
	capture    = flag.String("capture", "", "Capture log file (overrides config)")
	logLevel   = flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	interact   = flag.Bool("console", false, "Run the interactive console")
	mdns       = flag.Bool("mdns", false, "Advertise the agent over mDNS")
	browse     = flag.Bool("browse", false, "Browse for agents on the local network and exit")
)

func main() {
	flag.Parse()
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	if *browse {
		if err := browseAgents(); err != nil {
			log.Fatalf("Browse failed: %v", err)
		}
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.Println("Subscription Agent")
	log.Println("==================")
	log.Printf("Listen: %s", cfg.Listen)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cancel, cfg); err != nil {
		log.Fatalf("Agent failed: %v", err)
	}
	log.Println("Goodbye!")
}

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			return nil, err
		}
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *metricsAt != "" {
		cfg.Metrics.Address = *metricsAt
	}
	if *capture != "" {
		cfg.Capture.Path = *capture
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *interact {
		cfg.Console = true
	}
	if *mdns {
		cfg.MDNS.Enabled = true
	}
	return cfg, cfg.Validate()
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(log.Writer(), &slog.HandlerOptions{Level: l}))
}

func run(ctx context.Context, cancel context.CancelFunc, cfg *config.Config) error {
	logger := newLogger(cfg.LogLevel)

	// Capture: file log plus, at debug level, the slog adapter.
	var sinks []caplog.Logger
	if cfg.Capture.Path != "" {
		fl, err := caplog.NewFileLogger(cfg.Capture.Path)
		if err != nil {
			return fmt.Errorf("open capture log: %w", err)
		}
		defer fl.Close()
		sinks = append(sinks, fl)
		log.Printf("Capture log: %s", cfg.Capture.Path)
	}
	if strings.EqualFold(cfg.LogLevel, "debug") {
		sinks = append(sinks, caplog.NewSlogAdapter(logger))
	}
	var captureLog caplog.Logger
	if len(sinks) > 0 {
		captureLog = caplog.NewMultiLogger(sinks...)
	}

	mc := cfg.MemoryConfig()
	mc.Capture = captureLog
	mc.Logger = logger
	mem, err := datastore.NewMemory(mc)
	if err != nil {
		return fmt.Errorf("create datastore: %w", err)
	}
	defer mem.Close()

	for _, s := range cfg.Streams {
		if s.History == "" {
			continue
		}
		n, err := mem.LoadHistory(s.History)
		if err != nil {
			log.Printf("Warning: replay history %s: %v", s.History, err)
			continue
		}
		log.Printf("Loaded %d replay records from %s", n, s.History)
	}
	for _, v := range cfg.Seed {
		if err := mem.Set(v.Datastore, v.Path, v.Value); err != nil {
			return fmt.Errorf("seed %s:%s: %w", v.Datastore, v.Path, err)
		}
	}

	filters, err := cfg.FilterStore()
	if err != nil {
		return err
	}
	checker, err := cfg.AccessChecker()
	if err != nil {
		return err
	}

	mcfg := cfg.ManagerConfig()
	mcfg.Access = checker
	mcfg.Capture = captureLog
	mcfg.Logger = logger

	var metricsServer *http.Server
	if cfg.Metrics.Address != "" {
		reg := prometheus.NewRegistry()
		mcfg.Metrics = metrics.NewPrometheus(reg, cfg.Metrics.Namespace)
		metricsServer = serveMetrics(cfg.Metrics.Address, reg)
		log.Printf("Metrics: http://%s/metrics", cfg.Metrics.Address)
	}

	pcfg := cfg.PushConfig()
	pcfg.Datastore = mem
	pcfg.Filters = filters
	pcfg.Logger = logger

	mgr := subscription.NewManager(mcfg,
		stream.New(stream.Config{Datastore: mem, Filters: filters, Logger: logger}),
		push.New(pcfg),
	)
	defer mgr.Close()

	a, err := agent.New(agent.Config{
		Manager:        mgr,
		Filters:        filters,
		Identify:       cfg.Identity,
		MaxMessageSize: cfg.Limits.MaxMessageSize,
		Capture:        captureLog,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if err := a.Serve(ctx, ln); err != nil {
		return err
	}
	log.Printf("Serving control sessions on %s", ln.Addr())

	if cfg.MDNS.Enabled {
		adv, err := advertise(ctx, cfg, mem, ln.Addr())
		if err != nil {
			log.Printf("Warning: mDNS advertisement failed: %v", err)
		} else {
			defer adv.Stop()
		}
	}

	if cfg.Console {
		c, err := console.New(a, mem)
		if err != nil {
			return err
		}
		// Redirect log output through readline to avoid interfering with input
		log.SetOutput(c.Stdout())
		go c.Run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
	case <-ctx.Done():
	}

	log.Println("Shutting down...")
	if err := a.Stop(); err != nil {
		log.Printf("Error stopping agent: %v", err)
	}
	if metricsServer != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		defer done()
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Metrics server: %v", err)
		}
	}()
	return srv
}

func advertise(ctx context.Context, cfg *config.Config, mem *datastore.Memory, addr net.Addr) (discovery.Advertiser, error) {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return nil, fmt.Errorf("not a TCP address: %s", addr)
	}
	info := &discovery.AgentInfo{
		InstanceName: cfg.MDNS.Instance,
		AgentID:      uuid.NewString()[:8],
		Port:         uint16(tcp.Port),
		Datastores:   cfg.Datastores,
	}
	for _, name := range mem.StreamNames() {
		info.Streams = append(info.Streams, name)
		if s, err := mem.Stream(name); err == nil && s.Replay {
			info.Replay = append(info.Replay, name)
		}
	}

	adv, err := discovery.NewMDNSAdvertiser(discovery.DefaultAdvertiserConfig())
	if err != nil {
		return nil, err
	}
	if err := adv.Advertise(ctx, info); err != nil {
		return nil, err
	}
	log.Printf("Advertising %s on port %d", discovery.ServiceType, info.Port)
	return adv, nil
}

func browseAgents() error {
	b, err := discovery.NewMDNSBrowser(discovery.DefaultBrowserConfig())
	if err != nil {
		return err
	}
	defer b.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), discovery.DefaultBrowseTimeout)
	defer cancel()

	agents, err := b.BrowseAgents(ctx)
	if err != nil {
		return err
	}
	found := 0
	for svc := range agents {
		found++
		fmt.Printf("%s  %s:%d  id=%s  streams=%s  datastores=%s\n",
			svc.InstanceName, svc.Host, svc.Port, svc.AgentID,
			strings.Join(svc.Streams, ","), strings.Join(svc.Datastores, ","))
	}
	if found == 0 {
		fmt.Println("No agents found")
	}
	return nil
}
