/*
Package services assembles the challenge server into a deployable service.

# Components

OracleService (oracle_service.go) builds the oracle factory selected by
protocol.OracleConfig.Isolation, runs the TCP server, and stores a
protocol.SessionRecord for every finished session. It registers admin
routes with any chi router:

  - GET /status: isolation mode, budget and remaining budget (shared mode),
    challenge fingerprint, active sessions and outcome counts
  - GET /sessions?limit=N: most recent session records
  - GET /attestation: TEE quote over the challenge commitment, when
    ServiceConfig.Attestation is set (attestation.go)

Session stores (store.go, postgres_store.go):

  - InMemoryStore keeps a bounded window of recent records
  - PostgresStore persists records in the oracle_sessions table

The Orchestrator (orchestrator.go) deploys a service on a loopback port and
runs recovery clients against it, for demos and end-to-end tests.

# Usage

	svc, err := services.NewOracleService(&services.ServiceConfig{
	    Oracle: protocol.DefaultOracleConfig(),
	    Server: &server.Config{Addr: ":4000"},
	    Secret: secret,
	})
	if err != nil {
	    return err
	}
	admin, _ := httpserver.New(adminCfg, svc)
	svc.RegisterMetrics(admin.Metrics())
	svc.Start(ctx)
	admin.RunInBackground()
*/
package services
