/*
Package tracing carries block identity across process boundaries.

# Overview

A block id travels between processes in a header (HTTP) or metadata entry
(gRPC). The middleware and interceptors here read it on the way in and write it
on the way out, so that the caller's remote block and the callee's work form one
trace without a central coordinator.

# Headers

  - X-VFL-Remote-Block: the block a remote caller created for this call. The
    server enters it with flow.Tracer.StartRemote.
  - X-VFL-Publish-Block: a published event. The server starts a listener
    block under it.
  - X-VFL-Block: set on HTTP responses to the block that served the request.

A request with neither header starts a new root block.

# Usage

	tracer := flow.New(buf)
	skip, _ := tracing.NewSkipper("/health", "/metrics/**")

	// HTTP server
	router.Use(tracing.HTTPMiddleware(tracer, tracing.WithSkipper(skip)))

	// HTTP client
	client := &http.Client{Transport: tracing.Transport(tracer, nil)}

	// gRPC server
	server := grpc.NewServer(
		grpc.UnaryInterceptor(tracing.GRPCUnaryInterceptor(tracer)),
		grpc.StreamInterceptor(tracing.GRPCStreamInterceptor(tracer)),
	)

	// gRPC client
	conn, err := grpc.NewClient(addr,
		grpc.WithUnaryInterceptor(tracing.GRPCClientInterceptor(tracer)),
	)

A handler error, a 5xx status or a panic is recorded on the server block before
it closes.
*/
package tracing
