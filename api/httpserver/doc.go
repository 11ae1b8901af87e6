// Package httpserver provides the admin HTTP server of the challenge
// service.
//
// BaseServer mounts standard health endpoints next to the routes of any
// RouteRegistrar, and runs an optional metrics server beside it:
//
//   - /livez: liveness
//   - /readyz: readiness, toggled by /drain and /undrain
//   - /version: package name and build version
//   - /debug/pprof: profiling, when EnablePprof is set
//
// Usage:
//
//	srv, err := httpserver.New(cfg, oracleService)
//	if err != nil {
//	    return err
//	}
//	srv.RunInBackground()
//	defer srv.Shutdown()
//
// A drained server keeps serving requests; only /readyz changes so that a
// load balancer stops routing new challenge clients to the instance.
package httpserver
