package model

import (
	"fmt"
	"time"
)

// LogType is the wire tag of a log entry
type LogType string

const (
	LogInfo          LogType = "INFO"
	LogWarn          LogType = "WARN"
	LogError         LogType = "ERROR"
	LogTracePrimary  LogType = "TRACE_PRIMARY"
	LogTraceParallel LogType = "TRACE_PARALLEL"
	LogPublishEvent  LogType = "PUBLISH_EVENT"
	LogRemoteTrace   LogType = "REMOTE_TRACE"
	LogListenEvent   LogType = "LISTEN_EVENT"
)

// IsReference reports whether the tag belongs to a block-reference event
func (t LogType) IsReference() bool {
	switch t {
	case LogTracePrimary, LogTraceParallel, LogPublishEvent, LogRemoteTrace, LogListenEvent:
		return true
	}
	return false
}

// Valid reports whether the tag is part of the closed set
func (t LogType) Valid() bool {
	switch t {
	case LogInfo, LogWarn, LogError:
		return true
	}
	return t.IsReference()
}

// Level is the severity of a plain event
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

// LogType maps the level to its wire tag
func (l Level) LogType() LogType {
	switch l {
	case LevelWarn:
		return LogWarn
	case LevelError:
		return LogError
	default:
		return LogInfo
	}
}

// String returns the lowercase level name
func (l Level) String() string {
	switch l {
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// RefKind is the kind of a block-reference event
type RefKind int

const (
	// RefSubBlock marks a synchronous child block started from this chain
	RefSubBlock RefKind = iota
	// RefParallel marks a child block spawned onto another execution path
	RefParallel
	// RefPublish marks an event published for any number of listeners
	RefPublish
	// RefRemote marks a call into another process
	RefRemote
	// RefListen marks a listener picking up a published event
	RefListen
)

// LogType maps the reference kind to its wire tag
func (k RefKind) LogType() LogType {
	switch k {
	case RefParallel:
		return LogTraceParallel
	case RefPublish:
		return LogPublishEvent
	case RefRemote:
		return LogRemoteTrace
	case RefListen:
		return LogListenEvent
	default:
		return LogTracePrimary
	}
}

// ============================================================================
// Event variants
// ============================================================================

// Event is the closed set of log payload shapes
type Event interface {
	Type() LogType
	// Referenced returns the referenced block, empty for plain events
	Referenced() BlockID
	sealed()
}

// PlainEvent is an INFO, WARN or ERROR entry
type PlainEvent struct {
	Level Level
}

// Type returns the wire tag
func (e PlainEvent) Type() LogType { return e.Level.LogType() }

// Referenced returns the empty id
func (e PlainEvent) Referenced() BlockID { return "" }

func (PlainEvent) sealed() {}

// BlockReference introduces or references another block
type BlockReference struct {
	Kind  RefKind
	Block BlockID
}

// Type returns the wire tag
func (e BlockReference) Type() LogType { return e.Kind.LogType() }

// Referenced returns the referenced block id
func (e BlockReference) Referenced() BlockID { return e.Block }

func (BlockReference) sealed() {}

// ============================================================================
// BlockLog
// ============================================================================

// BlockLog is one event scoped to exactly one block
type BlockLog struct {
	ID          LogID
	BlockID     BlockID
	ParentLogID LogID
	Message     string
	Timestamp   time.Time
	Event       Event
}

// NewPlainLog builds an INFO/WARN/ERROR log
func NewPlainLog(id LogID, block BlockID, parent LogID, message string, level Level, ts time.Time) BlockLog {
	return BlockLog{
		ID:          id,
		BlockID:     block,
		ParentLogID: parent,
		Message:     message,
		Timestamp:   ts,
		Event:       PlainEvent{Level: level},
	}
}

// NewReferenceLog builds a block-reference log. The referenced block must be set
func NewReferenceLog(id LogID, block BlockID, parent LogID, message string, kind RefKind, ref BlockID, ts time.Time) (BlockLog, error) {
	if ref.IsZero() {
		return BlockLog{}, fmt.Errorf("%s log without referenced block", kind.LogType())
	}
	return BlockLog{
		ID:          id,
		BlockID:     block,
		ParentLogID: parent,
		Message:     message,
		Timestamp:   ts,
		Event:       BlockReference{Kind: kind, Block: ref},
	}, nil
}

// Type returns the wire tag, INFO when the event is unset
func (l BlockLog) Type() LogType {
	if l.Event == nil {
		return LogInfo
	}
	return l.Event.Type()
}

// ReferencedBlockID returns the referenced block for reference events
func (l BlockLog) ReferencedBlockID() BlockID {
	if l.Event == nil {
		return ""
	}
	return l.Event.Referenced()
}

// EventOf rebuilds the event for a wire tag, enforcing the reference invariant
func EventOf(t LogType, ref BlockID) (Event, error) {
	switch t {
	case LogInfo, LogWarn, LogError:
		if !ref.IsZero() {
			return nil, fmt.Errorf("%s log must not reference a block", t)
		}
	}
	switch t {
	case LogInfo:
		return PlainEvent{Level: LevelInfo}, nil
	case LogWarn:
		return PlainEvent{Level: LevelWarn}, nil
	case LogError:
		return PlainEvent{Level: LevelError}, nil
	}

	var kind RefKind
	switch t {
	case LogTracePrimary:
		kind = RefSubBlock
	case LogTraceParallel:
		kind = RefParallel
	case LogPublishEvent:
		kind = RefPublish
	case LogRemoteTrace:
		kind = RefRemote
	case LogListenEvent:
		kind = RefListen
	default:
		return nil, fmt.Errorf("unknown log type %q", t)
	}
	if ref.IsZero() {
		return nil, fmt.Errorf("%s log without referenced block", t)
	}
	return BlockReference{Kind: kind, Block: ref}, nil
}
