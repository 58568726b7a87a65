/*
Package server provides the agent's optional admin HTTP server.

# Routes

  - GET /health: liveness and uptime
  - GET /stats: buffer state (pending items, in-flight dispatches) and metric counters
  - GET /metrics: Prometheus exposition for the agent's registry
  - POST /flush: drain the buffer; 200 when delivered, 504 on drain timeout,
    502 when the flush handler reported failures
  - GET/PUT /log/level: the agent's log level, when Config.LogLevel is set

# Usage

	srv := server.New(server.Config{Addr: "127.0.0.1:9464"}, buf, metrics, registry, logger)
	addr, err := srv.Start()
	...
	srv.Shutdown(ctx)

The server is bound to loopback by default and is not itself traced.
*/
package server
