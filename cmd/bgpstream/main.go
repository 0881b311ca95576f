// Command bgpstream runs the BGPStream pipeline and its supporting
// catalog-backend housekeeping, following the teacher's cmd/rib-ingester
// dispatch/flag/logger conventions.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/caida/bgpstream-go/internal/catalogdb"
	"github.com/caida/bgpstream-go/internal/catalogmaint"
	"github.com/caida/bgpstream-go/internal/config"
	"github.com/caida/bgpstream-go/internal/datainterface"
	"github.com/caida/bgpstream-go/internal/datainterface/broker"
	"github.com/caida/bgpstream-go/internal/datainterface/catalog"
	"github.com/caida/bgpstream-go/internal/datainterface/kafka"
	"github.com/caida/bgpstream-go/internal/datainterface/manifest"
	"github.com/caida/bgpstream-go/internal/datainterface/singlefile"
	"github.com/caida/bgpstream-go/internal/elem"
	"github.com/caida/bgpstream-go/internal/filterstring"
	"github.com/caida/bgpstream-go/internal/httpapi"
	"github.com/caida/bgpstream-go/internal/metrics"
	"github.com/caida/bgpstream-go/internal/stream"
	"github.com/caida/bgpstream-go/internal/transport"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "stream":
		runStream()
	case "catalog-migrate":
		runCatalogMigrate()
	case "catalog-maintenance":
		runCatalogMaintenance()
	case "filter-check":
		runFilterCheck()
	case "--help", "-h", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: bgpstream <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  stream               Run the pipeline and print decoded elements")
	fmt.Println("  catalog-migrate      Run catalog-backend Postgres migrations")
	fmt.Println("  catalog-maintenance  Prune old catalog rows")
	fmt.Println("  filter-check <str>   Parse and echo a filter string")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config <path>   Path to configuration YAML file")
	fmt.Println("  --log-level <lvl> Override log level (debug, info, warn, error)")
}

func parseFlags(args []string) (configPath string, logLevel string, rest []string) {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			if i+1 < len(args) {
				configPath = args[i+1]
				i++
				continue
			}
		case "--log-level":
			if i+1 < len(args) {
				logLevel = args[i+1]
				i++
				continue
			}
		}
		rest = append(rest, args[i])
	}
	return
}

func loadConfig(args []string) (*config.Config, *zap.Logger, []string) {
	configPath, logLevelOverride, rest := parseFlags(args)

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if logLevelOverride != "" {
		cfg.Service.LogLevel = logLevelOverride
	}

	logger := initLogger(cfg.Service.LogLevel)
	return cfg, logger, rest
}

func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zap.DebugLevel
	case "warn":
		zapLevel = zap.WarnLevel
	case "error":
		zapLevel = zap.ErrorLevel
	default:
		zapLevel = zap.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel)
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// buildBackend selects and constructs the configured Data Interface
// backend plus the byte-stream opener the Reader Set will use.
func buildBackend(cfg *config.Config, logger *zap.Logger) (datainterface.Backend, transport.Opener, error) {
	opener := transport.NewFileHTTPOpener(nil)

	switch cfg.Backend.ID {
	case "singlefile":
		b := singlefile.New(cfg.Backend.Project, cfg.Backend.Collector,
			cfg.Backend.RIBFile, cfg.Backend.UpdFile, logger.Named("datainterface.singlefile"))
		return b, opener, nil
	case "manifest":
		return manifest.New(cfg.Backend.CSVFile), opener, nil
	case "catalog":
		pool, err := catalogdb.NewPool(context.Background(), cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.MinConns)
		if err != nil {
			return nil, nil, err
		}
		return catalog.New(pool), opener, nil
	case "broker":
		return broker.New(cfg.Backend.BrokerURL, cfg.Backend.BrokerParams, http.DefaultClient), opener, nil
	case "kafka":
		tlsCfg, err := cfg.Kafka.BuildTLSConfig()
		if err != nil {
			return nil, nil, err
		}
		saslMech := cfg.Kafka.BuildSASLMechanism()
		b, err := kafka.New(cfg.Kafka.Brokers, cfg.Kafka.Notify.GroupID, cfg.Kafka.Notify.Topics,
			cfg.Kafka.ClientID, tlsCfg, saslMech, logger.Named("datainterface.kafka"))
		return b, opener, err
	default:
		return nil, nil, fmt.Errorf("unknown backend id %q", cfg.Backend.ID)
	}
}

func runStream() {
	cfg, logger, _ := loadConfig(os.Args[2:])
	defer logger.Sync()

	metrics.Register()

	logger.Info("starting bgpstream",
		zap.String("instance_id", cfg.Service.InstanceID),
		zap.String("backend", cfg.Backend.ID),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, opener, err := buildBackend(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build data interface backend", zap.Error(err))
	}

	s := stream.Create(logger.Named("stream"))
	if cfg.Backend.Live {
		s.SetBlocking()
	}
	if err := s.SetDataInterface(backend, opener); err != nil {
		logger.Fatal("failed to set data interface", zap.Error(err))
	}
	if err := s.Start(); err != nil {
		logger.Fatal("failed to start stream", zap.Error(err))
	}

	var backendStatus httpapi.BackendStatus
	if bs, ok := backend.(httpapi.BackendStatus); ok {
		backendStatus = bs
	}
	httpSrv := httpapi.NewServer(cfg.Service.HTTPListen, nil, backendStatus, s, logger.Named("httpapi"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpSrv.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Service.ShutdownTimeoutSeconds)*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		defer stop()
		for {
			rec, code, err := s.NextRecord(gctx)
			if err != nil {
				return fmt.Errorf("stream: %w", err)
			}
			if code == 0 {
				logger.Info("stream reached end-of-stream")
				return nil
			}
			for _, el := range elem.Decode(rec) {
				metrics.ElementsDecodedTotal.WithLabelValues(el.Type.String()).Inc()
				fmt.Printf("%s\n", elementLine(el))
			}
		}
	})

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		logger.Error("stream terminated with error", zap.Error(err))
		s.Destroy()
		os.Exit(1)
	}
	s.Destroy()
}

func elementLine(e elem.Element) string {
	return fmt.Sprintf("%d|%s|%s|%d|%s", e.Timestamp, e.Type, e.PeerAddress, e.PeerASN, e.Prefix)
}

func runCatalogMigrate() {
	cfg, logger, _ := loadConfig(os.Args[2:])
	defer logger.Sync()

	ctx := context.Background()
	pool, err := catalogdb.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.MinConns)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := catalogdb.RunMigrations(ctx, pool, logger); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}
	logger.Info("catalog migrations complete")
}

func runCatalogMaintenance() {
	cfg, logger, _ := loadConfig(os.Args[2:])
	defer logger.Sync()

	ctx := context.Background()
	pool, err := catalogdb.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.MinConns)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	r := catalogmaint.NewRetention(pool, cfg.Catalog.RetentionDays, cfg.Catalog.Timezone, logger)
	if err := r.Run(ctx); err != nil {
		logger.Fatal("catalog maintenance failed", zap.Error(err))
	}
}

func runFilterCheck() {
	args := os.Args[2:]
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: bgpstream filter-check <filter string>")
		os.Exit(1)
	}
	terms, err := filterstring.Parse(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid filter string: %v\n", err)
		os.Exit(1)
	}
	for _, t := range terms {
		if t.Mod != "" {
			fmt.Printf("%s[%s] = %v\n", t.Name, t.Mod, t.Values)
		} else {
			fmt.Printf("%s = %v\n", t.Name, t.Values)
		}
	}
}
