package tracing

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/GriffinCanCode/vfl/internal/domain/model"
	"github.com/GriffinCanCode/vfl/internal/flow"
)

// Option configures the middleware and interceptors
type Option func(*options)

type options struct {
	skipper *Skipper
}

// WithSkipper leaves matching paths or gRPC methods untraced
func WithSkipper(s *Skipper) Option {
	return func(o *options) { o.skipper = s }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// start opens the server-side scope for an inbound request.
// A remote block id enters the caller's block; a published block id starts a
// listener; otherwise the request is a new root.
func start(ctx context.Context, tracer *flow.Tracer, c Carrier, name string) (context.Context, *flow.Scope) {
	if remote := ExtractRemote(c); !remote.IsZero() {
		return tracer.StartRemote(ctx, remote, name)
	}
	if h := ExtractPublish(c); h.Valid() {
		return tracer.StartListen(ctx, h, name)
	}
	return tracer.StartRoot(ctx, name)
}

// endOnPanic closes s with the panic value and re-raises it
func endOnPanic(s *flow.Scope) {
	if r := recover(); r != nil {
		s.End(fmt.Errorf("panic: %v", r))
		panic(r)
	}
}

// ============================================================================
// HTTP
// ============================================================================

// HTTPMiddleware creates Gin middleware that runs each request inside a block
func HTTPMiddleware(tracer *flow.Tracer, opts ...Option) gin.HandlerFunc {
	o := buildOptions(opts)

	return func(c *gin.Context) {
		if o.skipper.Skip(c.Request.URL.Path) {
			c.Next()
			return
		}

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		ctx, scope := start(c.Request.Context(), tracer, HeaderCarrier(c.Request.Header), c.Request.Method+" "+route)
		defer endOnPanic(scope)

		c.Request = c.Request.WithContext(ctx)
		c.Header(HeaderBlock, scope.Block().ID.String())

		c.Next()

		var err error
		if len(c.Errors) > 0 {
			err = c.Errors.Last()
		} else if status := c.Writer.Status(); status >= http.StatusInternalServerError {
			err = fmt.Errorf("HTTP %d", status)
		}
		scope.End(err)
	}
}

// ============================================================================
// gRPC server
// ============================================================================

// GRPCUnaryInterceptor creates a gRPC unary server interceptor
func GRPCUnaryInterceptor(tracer *flow.Tracer, opts ...Option) grpc.UnaryServerInterceptor {
	o := buildOptions(opts)

	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if o.skipper.Skip(info.FullMethod) {
			return handler(ctx, req)
		}

		md, _ := metadata.FromIncomingContext(ctx)
		ctx, scope := start(ctx, tracer, MetadataCarrier(md.Copy()), info.FullMethod)
		defer endOnPanic(scope)

		resp, err := handler(ctx, req)
		scope.End(err)
		return resp, err
	}
}

// GRPCStreamInterceptor creates a gRPC stream server interceptor
func GRPCStreamInterceptor(tracer *flow.Tracer, opts ...Option) grpc.StreamServerInterceptor {
	o := buildOptions(opts)

	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if o.skipper.Skip(info.FullMethod) {
			return handler(srv, ss)
		}

		md, _ := metadata.FromIncomingContext(ss.Context())
		ctx, scope := start(ss.Context(), tracer, MetadataCarrier(md.Copy()), info.FullMethod)
		defer endOnPanic(scope)

		err := handler(srv, &tracedServerStream{ServerStream: ss, ctx: ctx})
		scope.End(err)
		return err
	}
}

// tracedServerStream wraps grpc.ServerStream with the block context
type tracedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *tracedServerStream) Context() context.Context {
	return s.ctx
}

// ============================================================================
// gRPC client
// ============================================================================

// GRPCClientInterceptor creates a gRPC unary client interceptor that wraps each
// call in a remote block and sends its id in metadata
func GRPCClientInterceptor(tracer *flow.Tracer) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		return tracer.Remote(ctx, method, func(ctx context.Context, remote model.BlockID) error {
			md, ok := metadata.FromOutgoingContext(ctx)
			if ok {
				md = md.Copy()
			} else {
				md = metadata.MD{}
			}
			InjectRemote(MetadataCarrier(md), remote)
			return invoker(metadata.NewOutgoingContext(ctx, md), method, req, reply, cc, opts...)
		})
	}
}

// ============================================================================
// HTTP client
// ============================================================================

// Transport wraps each outbound request in a remote block and sends its id in
// the X-VFL-Remote-Block header. A nil base uses http.DefaultTransport.
func Transport(tracer *flow.Tracer, base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &transport{tracer: tracer, base: base}
}

type transport struct {
	tracer *flow.Tracer
	base   http.RoundTripper
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	var (
		resp  *http.Response
		rtErr error
	)
	_ = t.tracer.Remote(req.Context(), req.Method+" "+req.URL.Path, func(ctx context.Context, remote model.BlockID) error {
		out := req.Clone(ctx)
		InjectRemote(HeaderCarrier(out.Header), remote)

		resp, rtErr = t.base.RoundTrip(out)
		if rtErr != nil {
			return rtErr
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("HTTP %d", resp.StatusCode)
		}
		return nil
	})
	return resp, rtErr
}
