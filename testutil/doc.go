/*
Package testutil provides fixtures for testing the challenge server and the
recovery client.

# Configuration Generators

Option functions customize an OracleConfig:

	cfg := testutil.NewTestOracleConfig(
	    testutil.WithBudget(16),
	    testutil.WithIsolation(protocol.IsolationPerConnection),
	)

# Deterministic Oracles

Key material is derived from a fixed seed and bit flips are drawn from a
seeded PCG source, so the sequence of oracle outputs is reproducible:

	material := testutil.TestMaterial(t)
	oracle := testutil.NewTestOracle(t, material, 128, 42)

OracleSession adapts an in-process oracle to protocol.Session, for driving
the recovery client without a network.

# In-process Server

StartOracleServer binds a TCP server on a loopback port and stops it when
the test ends:

	srv := testutil.StartOracleServer(t, &server.Config{}, server.SharedOracle(oracle))
	dial := client.TCPDialer(srv.Addr().String(), nil)

This package is intended for testing purposes only and should not be used in
production code.
*/
package testutil
