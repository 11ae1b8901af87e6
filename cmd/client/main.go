// Command client recovers the challenge plaintext from a running server and
// redeems it.
//
// It prints the recovered plaintext as hex, how it was selected, and the
// server's reveal response verbatim. The exit code is 0 only when the
// reveal succeeded.
//
// # Usage
//
//	go run ./cmd/client localhost 4000
//	go run ./cmd/client --config=client.yaml --max-queries=96 challenge.example.com 4000
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/flashbots/tdesoracle/client"
	"github.com/flashbots/tdesoracle/cmd/common"
	"github.com/flashbots/tdesoracle/protocol"
)

func main() {
	var (
		configPath   = flag.String("config", "", "Path to YAML config file")
		maxQueries   = flag.Int("max-queries", 0, "Oracle queries per recovery pass")
		noComplement = flag.Bool("no-complement", false, "Query the challenge as served instead of its complement")
		logLevel     = flag.String("log-level", "", "Log level: debug, info, warn, error")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] host port\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}
	addr := net.JoinHostPort(flag.Arg(0), flag.Arg(1))

	cfg := common.DefaultClientConfig()
	if *configPath != "" {
		var err error
		cfg, err = common.LoadClientConfig(*configPath)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
	}
	if *maxQueries > 0 {
		cfg.Strategy.MaxQueries = *maxQueries
	}
	if *noComplement {
		cfg.Strategy.Complement = false
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	log, err := common.NewLogger(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		fmt.Printf("Configuration error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.Deadline > 0 {
		ctx, cancel = context.WithTimeout(ctx, cfg.Deadline)
		defer cancel()
	}
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		cancel()
	}()

	r, err := client.NewRecoverer(client.TCPDialer(addr, &cfg.Timeouts), &client.Config{
		Strategy: &cfg.Strategy,
		Retry:    &cfg.Retry,
		Log:      log,
	})
	if err != nil {
		fmt.Printf("Configuration error: %v\n", err)
		os.Exit(1)
	}

	res, err := r.Solve(ctx)
	if res != nil {
		fmt.Printf("Recovered plaintext: %s\n", protocol.EncodeHex(res.Plaintext))
		fmt.Printf("Method: %s, queries: %d, reconnects: %d\n", res.Method, res.Queries, res.Reconnects)
	}
	switch {
	case err == nil:
		fmt.Printf("%s\n", res.Payload)
	case errors.Is(err, protocol.ErrMismatch):
		fmt.Println(protocol.MsgMismatch)
		os.Exit(1)
	default:
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}
