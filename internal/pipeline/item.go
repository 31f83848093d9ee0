// Package pipeline runs one ingestion: producers read and align input files
// concurrently, a single writer appends their chunks to the store, and once
// everything is drained every created table is compacted.
//
//	files -> Producer (one per file) -> bounded channel -> Writer -> store
//	                                                              -> Compactor
package pipeline

import "github.com/xtxerr/tickstore/internal/chunk"

// Item is one unit of work on the shared channel.
type Item struct {
	// Table is the destination table.
	Table string

	// Chunk holds the aligned rows.
	Chunk *chunk.Chunk

	eos bool
}

// EndOfStream tells the writer that no more items follow. The coordinator
// sends it exactly once, after every producer has returned.
var EndOfStream = Item{eos: true}

// IsEnd reports whether it is the end-of-stream sentinel.
func (it Item) IsEnd() bool {
	return it.eos
}
