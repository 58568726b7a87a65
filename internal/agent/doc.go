// Package agent assembles a complete tracing pipeline from configuration.
//
// New builds, in order: logger, metrics registry, flush handler, buffer,
// tracer and the optional admin server. Shutdown stops the periodic flush,
// drains the buffer within the drain timeout and stops the admin server.
//
//	a, err := agent.New(config.LoadOrDefault())
//	if err != nil {
//		return err
//	}
//	defer a.Shutdown(context.Background())
//
//	return a.Tracer.Root(ctx, "job", run)
package agent
