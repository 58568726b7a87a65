package tracing

import (
	"net/http"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"google.golang.org/grpc/metadata"

	"github.com/GriffinCanCode/vfl/internal/domain/model"
	"github.com/GriffinCanCode/vfl/internal/flow"
)

// Propagation headers
const (
	HeaderRemoteBlock  = "X-VFL-Remote-Block"
	HeaderPublishBlock = "X-VFL-Publish-Block"
	// HeaderBlock is set on responses to the id of the block that served them
	HeaderBlock = "X-VFL-Block"
)

// Carrier reads and writes propagation fields on a transport
type Carrier interface {
	Get(key string) string
	Set(key, value string)
}

// HeaderCarrier adapts http.Header
type HeaderCarrier http.Header

// Get returns the first value for key
func (c HeaderCarrier) Get(key string) string { return http.Header(c).Get(key) }

// Set replaces the values for key
func (c HeaderCarrier) Set(key, value string) { http.Header(c).Set(key, value) }

// MetadataCarrier adapts gRPC metadata, whose keys are lowercase
type MetadataCarrier metadata.MD

// Get returns the first value for key
func (c MetadataCarrier) Get(key string) string {
	vals := metadata.MD(c).Get(key)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

// Set replaces the values for key
func (c MetadataCarrier) Set(key, value string) { metadata.MD(c).Set(key, value) }

// ============================================================================
// Remote calls
// ============================================================================

// InjectRemote writes the remote block id; an empty id writes nothing
func InjectRemote(c Carrier, id model.BlockID) {
	if id.IsZero() {
		return
	}
	c.Set(HeaderRemoteBlock, id.String())
}

// ExtractRemote reads the remote block id, empty when absent
func ExtractRemote(c Carrier) model.BlockID {
	return model.BlockID(strings.TrimSpace(c.Get(HeaderRemoteBlock)))
}

// ============================================================================
// Published events
// ============================================================================

// InjectPublish writes the published block id of an event
func InjectPublish(c Carrier, h flow.PublishHandle) {
	if !h.Valid() {
		return
	}
	c.Set(HeaderPublishBlock, h.BlockID.String())
}

// ExtractPublish rebuilds a handle from a published block id
func ExtractPublish(c Carrier) flow.PublishHandle {
	id := model.BlockID(strings.TrimSpace(c.Get(HeaderPublishBlock)))
	if id.IsZero() {
		return flow.PublishHandle{}
	}
	return flow.PublishHandle{BlockID: id, Block: model.Block{ID: id}}
}

// ============================================================================
// Path filter
// ============================================================================

// Skipper matches request paths that must not be traced
type Skipper struct {
	patterns []string
}

// NewSkipper compiles doublestar patterns such as "/health" or "/metrics/**"
func NewSkipper(patterns ...string) (*Skipper, error) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, &PatternError{Pattern: p}
		}
	}
	return &Skipper{patterns: patterns}, nil
}

// Skip reports whether path matches any pattern
func (s *Skipper) Skip(path string) bool {
	if s == nil {
		return false
	}
	for _, p := range s.patterns {
		if ok, _ := doublestar.Match(p, path); ok {
			return true
		}
	}
	return false
}

// PatternError reports a malformed skip pattern
type PatternError struct {
	Pattern string
}

func (e *PatternError) Error() string {
	return "invalid skip pattern: " + e.Pattern
}
