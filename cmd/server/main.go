// Command server runs the 3DES decryption-oracle challenge.
//
// Each TCP client sees a four-line menu and may fetch the encrypted
// challenge, request decryptions under a self-corrupting key, or submit the
// recovered plaintext once to reveal the secret payload.
//
// # Configuration File
//
//	listen_addr: ":4000"
//	admin_addr: ":8080"      # /status, /sessions, /livez, /readyz
//	metrics_addr: ":9090"    # /metrics
//	admin_cors_origins: []   # browser origins allowed on admin routes
//	secret_file: "string.txt"
//	attestation: ""          # dummy, tdx or remote:<url>; served on /attestation
//	expected_measurements: {} # register index to hex value, checked at startup
//	oracle:
//	  budget: 128
//	  challenge_length: 64
//	  isolation: shared      # or per-connection
//	  seed: ""               # hex, derives key material when set
//	session:
//	  lifetime: 128s
//	  read_timeout: 30s
//	  rate_limit: 1          # new connections per second per host
//	  rate_burst: 5
//	postgres:                # omit to keep session records in memory
//	  host: localhost
//	  port: 5432
//	log:
//	  level: info
//	  json: false
//
// Flags override file values.
//
// # Usage
//
//	go run ./cmd/server --config=server.yaml
//	go run ./cmd/server --listen=:4000 --secret-file=string.txt --budget=128
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/awnumar/memguard"

	"github.com/flashbots/tdesoracle/api/httpserver"
	"github.com/flashbots/tdesoracle/cmd/common"
	"github.com/flashbots/tdesoracle/protocol"
	"github.com/flashbots/tdesoracle/server"
	"github.com/flashbots/tdesoracle/services"
	"github.com/flashbots/tdesoracle/tdx"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML config file")
		listenAddr  = flag.String("listen", "", "TCP challenge listen address")
		adminAddr   = flag.String("admin", "", "Admin HTTP listen address")
		metricsAddr = flag.String("metrics", "", "Metrics HTTP listen address")
		secretFile  = flag.String("secret-file", "", "File holding the reveal payload")
		budget      = flag.Int("budget", 0, "Decryption budget")
		isolation   = flag.String("isolation", "", "Oracle isolation: shared or per-connection")
		seed        = flag.String("seed", "", "Hex seed for deterministic key material")
		attestation = flag.String("attestation", "", "Attestation provider: dummy, tdx or remote:<url>")
		logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error")
		logJSON     = flag.Bool("log-json", false, "Log in JSON")
	)
	flag.Parse()

	isFlagSet := func(name string) bool {
		found := false
		flag.Visit(func(f *flag.Flag) {
			if f.Name == name {
				found = true
			}
		})
		return found
	}

	cfg, err := loadConfiguration(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *adminAddr != "" {
		cfg.AdminAddr = *adminAddr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *secretFile != "" {
		cfg.SecretFile = *secretFile
		cfg.Secret = ""
	}
	if isFlagSet("budget") {
		cfg.Oracle.Budget = *budget
	}
	if *isolation != "" {
		cfg.Oracle.Isolation = protocol.Isolation(*isolation)
	}
	if *seed != "" {
		cfg.Oracle.Seed = *seed
	}
	if *attestation != "" {
		cfg.Attestation = *attestation
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if isFlagSet("log-json") {
		cfg.Log.JSON = *logJSON
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("Configuration error: %v\n", err)
		os.Exit(1)
	}

	log, err := common.NewLogger(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		fmt.Printf("Configuration error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Info("Shutting down")
		cancel()
	}()

	err = run(ctx, cfg, log)
	// Wipe sealed key material before exit.
	memguard.Purge()
	if err != nil {
		log.Error("Server failed", "err", err)
		os.Exit(1)
	}
}

func loadConfiguration(configPath string) (*common.ServerConfig, error) {
	if configPath != "" {
		return common.LoadServerConfig(configPath)
	}
	return common.DefaultServerConfig(), nil
}

func run(ctx context.Context, cfg *common.ServerConfig, log *slog.Logger) error {
	secret, err := common.LoadSecret(cfg.Secret, cfg.SecretFile)
	if err != nil {
		return err
	}

	var provider tdx.Provider
	if cfg.Attestation != "" {
		provider, err = tdx.NewProvider(cfg.Attestation, 30*time.Second)
		if err != nil {
			return err
		}
	}

	expected, err := tdx.ParseMeasurements(cfg.ExpectedMeasurements)
	if err != nil {
		return err
	}

	var store services.SessionStore
	if cfg.Postgres != nil {
		store, err = services.NewPostgresStore(cfg.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		log.Info("Recording sessions in postgres", "host", cfg.Postgres.Host)
	}

	svc, err := services.NewOracleService(&services.ServiceConfig{
		Oracle: cfg.OracleConfig(),
		Server: &server.Config{
			Addr:         cfg.ListenAddr,
			WriteTimeout: cfg.Session.WriteTimeout,
			RateLimit:    cfg.Session.RateLimit,
			RateBurst:    cfg.Session.RateBurst,
		},
		Secret:               secret,
		Store:                store,
		Attestation:          provider,
		ExpectedMeasurements: expected,
		Log:                  log,
	})
	if err != nil {
		if store != nil {
			store.Close()
		}
		return err
	}
	defer svc.Close()

	if cfg.AdminAddr != "" {
		httpCfg := httpserver.DefaultHTTPServerConfig(cfg.AdminAddr, cfg.MetricsAddr, log)
		httpCfg.EnablePprof = cfg.EnablePprof
		httpCfg.CORSOrigins = cfg.AdminCORSOrigins
		admin, err := httpserver.New(httpCfg, svc)
		if err != nil {
			return err
		}
		svc.RegisterMetrics(admin.Metrics())
		admin.RunInBackground()
		defer admin.Shutdown()
	}

	if err := svc.Start(ctx); err != nil {
		return err
	}
	log.Info("Challenge ready",
		"listenAddress", svc.Addr().String(),
		"isolation", cfg.Oracle.Isolation,
		"budget", cfg.Oracle.Budget)

	return svc.Wait()
}
