// Package id provides centralized ID generation for blocks and logs.
//
// This package offers time-sortable identifiers with:
//   - Lexicographic sortability: IDs approximate creation order without coordination
//   - Two strategies: monotonic ULIDs (default) or UUIDv7 (collector compatibility)
//   - Lock-protected entropy: safe for concurrent producers
//
// Design Principles:
//   - One generator per pipeline, no ambient global required
//   - K-sortable: a collector can order blocks and logs by ID alone
//   - Never reused: every call yields a fresh identifier
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ============================================================================
// Strategies
// ============================================================================

// Strategy selects the identifier format produced by a Generator
type Strategy string

const (
	// StrategyULID produces 26-character Crockford base32 ULIDs
	StrategyULID Strategy = "ulid"
	// StrategyUUIDv7 produces RFC 9562 version 7 UUIDs
	StrategyUUIDv7 Strategy = "uuidv7"
)

// ParseStrategy converts a configuration value into a Strategy
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyULID, "":
		return StrategyULID, nil
	case StrategyUUIDv7:
		return StrategyUUIDv7, nil
	default:
		return "", fmt.Errorf("unknown id strategy %q", s)
	}
}

// ============================================================================
// Generator
// ============================================================================

// Generator generates time-sortable identifiers
type Generator struct {
	strategy  Strategy
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
	now       func() time.Time
}

var (
	// Default generator with cryptographically secure monotonic entropy
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the shared ULID generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new monotonic ULID generator
func NewGenerator() *Generator {
	return NewGeneratorWithStrategy(StrategyULID)
}

// NewGeneratorWithStrategy creates a generator for the given strategy
func NewGeneratorWithStrategy(strategy Strategy) *Generator {
	return &Generator{
		strategy: strategy,
		entropy:  ulid.Monotonic(rand.Reader, 0),
		now:      time.Now,
	}
}

// NewGeneratorWithEntropy creates a ULID generator with custom entropy source
// Useful for testing with deterministic entropy
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		strategy: StrategyULID,
		entropy:  entropy,
		now:      time.Now,
	}
}

// Strategy reports the format this generator produces
func (g *Generator) Strategy() Strategy {
	return g.strategy
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy)
}

// NewString creates a new identifier in the generator's format
func (g *Generator) NewString() string {
	if g.strategy == StrategyUUIDv7 {
		u, err := uuid.NewV7()
		if err != nil {
			// Entropy exhaustion is not recoverable here; fall back to ULID
			return g.Generate().String()
		}
		return u.String()
	}
	return g.Generate().String()
}

// GenerateBatch generates multiple ULIDs sharing one timestamp
// More efficient than calling Generate() in a loop
func (g *Generator) GenerateBatch(count int) []ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	ids := make([]ulid.ULID, count)
	now := ulid.Timestamp(g.now())

	for i := 0; i < count; i++ {
		ids[i] = ulid.MustNew(now, g.entropy)
	}

	return ids
}

// ============================================================================
// Validation
// ============================================================================

// IsValid checks if an ID string is a valid ULID or UUID
func IsValid(id string) bool {
	if _, err := ulid.ParseStrict(id); err == nil {
		return true
	}
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// Timestamp extracts the embedded creation time from a ULID or UUIDv7
func Timestamp(id string) (time.Time, error) {
	if parsed, err := ulid.ParseStrict(id); err == nil {
		return ulid.Time(parsed.Time()), nil
	}
	u, err := uuid.Parse(id)
	if err != nil {
		return time.Time{}, fmt.Errorf("not a sortable id: %q", id)
	}
	if u.Version() != 7 {
		return time.Time{}, fmt.Errorf("uuid %q is version %d, not 7", id, u.Version())
	}
	// First 48 bits hold unix milliseconds
	var ms int64
	for _, b := range u[:6] {
		ms = ms<<8 | int64(b)
	}
	return time.UnixMilli(ms), nil
}
