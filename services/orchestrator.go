package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/flashbots/tdesoracle/client"
	"github.com/flashbots/tdesoracle/protocol"
	"github.com/flashbots/tdesoracle/server"
)

// OrchestratorConfig contains local deployment configuration.
type OrchestratorConfig struct {
	// NumClients is the number of recovery clients run concurrently.
	NumClients int

	// Addr is the TCP address of the challenge server. Empty selects a
	// loopback port.
	Addr string

	Oracle   *protocol.OracleConfig
	Strategy *protocol.StrategyConfig
	Retry    *client.RetryPolicy
	Secret   []byte
	Log      *slog.Logger
}

// ClientOutcome is the result of one orchestrated client.
type ClientOutcome struct {
	Index  int
	Result *client.Result
	Err    error
}

// Orchestrator runs a challenge service and recovery clients in one process.
type Orchestrator struct {
	config  *OrchestratorConfig
	service *OracleService
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewOrchestrator creates a deployment orchestrator.
func NewOrchestrator(config *OrchestratorConfig) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	log := config.Log
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		config: config,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Deploy starts the challenge service.
func (o *Orchestrator) Deploy() error {
	addr := o.config.Addr
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	oracleCfg := o.config.Oracle
	if oracleCfg == nil {
		oracleCfg = protocol.DefaultOracleConfig()
	}

	svc, err := NewOracleService(&ServiceConfig{
		Oracle: oracleCfg,
		Server: &server.Config{Addr: addr},
		Secret: o.config.Secret,
		Log:    o.log,
	})
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}
	if err := svc.Start(o.ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	o.service = svc

	o.log.Info("Deployment complete", "addr", svc.Addr().String(), "isolation", oracleCfg.Isolation)
	return nil
}

// Service returns the deployed service, or nil before Deploy.
func (o *Orchestrator) Service() *OracleService {
	return o.service
}

// RunClients runs NumClients recoveries concurrently and returns their
// outcomes in index order.
func (o *Orchestrator) RunClients(ctx context.Context) ([]*ClientOutcome, error) {
	if o.service == nil {
		return nil, fmt.Errorf("not deployed")
	}
	n := o.config.NumClients
	if n <= 0 {
		n = 1
	}

	addr := o.service.Addr().String()
	recoverers := make([]*client.Recoverer, n)
	for i := range recoverers {
		r, err := client.NewRecoverer(client.TCPDialer(addr, nil), &client.Config{
			Strategy: o.config.Strategy,
			Retry:    o.config.Retry,
			Log:      o.log.With("client", i),
		})
		if err != nil {
			return nil, fmt.Errorf("client %d: %w", i, err)
		}
		recoverers[i] = r
	}

	outcomes := make([]*ClientOutcome, n)
	var wg sync.WaitGroup
	for i, r := range recoverers {
		wg.Add(1)
		go func(i int, r *client.Recoverer) {
			defer wg.Done()
			res, err := r.Solve(ctx)
			outcomes[i] = &ClientOutcome{Index: i, Result: res, Err: err}
		}(i, r)
	}
	wg.Wait()
	return outcomes, nil
}

// Shutdown stops the service and waits for it.
func (o *Orchestrator) Shutdown() {
	o.cancel()
	if o.service != nil {
		if err := o.service.Wait(); err != nil {
			o.log.Error("Service stopped with error", "err", err)
		}
		o.service.Close()
	}
}
