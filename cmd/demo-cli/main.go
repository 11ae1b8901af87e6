// Command demo-cli deploys a challenge server in-process and runs recovery
// clients against it.
//
// # Usage
//
//	go run ./cmd/demo-cli --clients=4 --isolation=per-connection
//	go run ./cmd/demo-cli --clients=2 --no-complement
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flashbots/tdesoracle/cmd/common"
	"github.com/flashbots/tdesoracle/protocol"
	"github.com/flashbots/tdesoracle/services"
)

func main() {
	var (
		clients      = flag.Int("clients", 1, "Concurrent recovery clients")
		budget       = flag.Int("budget", 128, "Decryption budget")
		isolation    = flag.String("isolation", string(protocol.IsolationPerConnection), "Oracle isolation: shared or per-connection")
		seed         = flag.String("seed", "", "Hex seed for deterministic key material")
		noComplement = flag.Bool("no-complement", false, "Query the challenge as served instead of its complement")
		logLevel     = flag.String("log-level", "warn", "Log level")
		timeout      = flag.Duration("timeout", time.Minute, "Overall deadline")
	)
	flag.Parse()

	log, err := common.NewLogger(*logLevel, false)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	oracleCfg := protocol.DefaultOracleConfig()
	oracleCfg.Budget = *budget
	oracleCfg.Isolation = protocol.Isolation(*isolation)
	oracleCfg.Seed = *seed

	strategy := protocol.DefaultStrategyConfig()
	strategy.Complement = !*noComplement

	o := services.NewOrchestrator(&services.OrchestratorConfig{
		NumClients: *clients,
		Oracle:     oracleCfg,
		Strategy:   strategy,
		Secret:     []byte("flag{demo}"),
		Log:        log,
	})
	if err := o.Deploy(); err != nil {
		fmt.Printf("Deploy error: %v\n", err)
		os.Exit(1)
	}
	defer o.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		cancel()
	}()

	outcomes, err := o.RunClients(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	solved := 0
	for _, out := range outcomes {
		if out.Err != nil {
			fmt.Printf("client %d: %v\n", out.Index, out.Err)
			continue
		}
		solved++
		fmt.Printf("client %d: %s via %s after %d queries (%d reconnects)\n",
			out.Index, out.Result.Payload, out.Result.Method, out.Result.Queries, out.Result.Reconnects)
	}

	st := o.Service().Status()
	fmt.Printf("%d/%d solved, sessions by outcome: %v\n", solved, len(outcomes), st.Sessions)
	if solved != len(outcomes) {
		os.Exit(1)
	}
}
