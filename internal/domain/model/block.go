package model

import (
	"fmt"
	"time"
)

// BlockID identifies a block. Empty means "no block"
type BlockID string

// LogID identifies a block log. Empty means "no log"
type LogID string

// String returns the raw identifier
func (id BlockID) String() string { return string(id) }

// String returns the raw identifier
func (id LogID) String() string { return string(id) }

// IsZero reports whether the id is unset
func (id BlockID) IsZero() bool { return id == "" }

// IsZero reports whether the id is unset
func (id LogID) IsZero() bool { return id == "" }

// Block represents one span of execution.
//
// CreatedAt is when the Block value was constructed, which is distinct from
// when it is entered: a publisher may construct a block that a listener in
// another process enters much later.
type Block struct {
	ID            BlockID
	ParentBlockID BlockID
	Name          string
	CreatedAt     time.Time
}

// NewBlock constructs a block with a freshly assigned id
func NewBlock(id BlockID, name string, parent BlockID, createdAt time.Time) Block {
	return Block{
		ID:            id,
		ParentBlockID: parent,
		Name:          name,
		CreatedAt:     createdAt,
	}
}

// IsRoot reports whether the block has no known logical caller
func (b Block) IsRoot() bool {
	return b.ParentBlockID.IsZero()
}

// String formats the block for diagnostics
func (b Block) String() string {
	return fmt.Sprintf("Block{id=%s parent=%s name=%q}", b.ID, b.ParentBlockID, b.Name)
}
