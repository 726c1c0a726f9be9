// Package store persists what outlives a run: the last remote peer and,
// with the sqlite backend, the message history.
package store

import (
	"context"
	"fmt"
	"time"
)

const (
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
)

// Store remembers a single remote identifier. An empty identifier means
// none is remembered.
type Store interface {
	LastRemote(ctx context.Context) (string, error)
	SetLastRemote(ctx context.Context, id string) error
	Close() error
}

// History records user messages exchanged with remote peers.
type History interface {
	RecordMessage(ctx context.Context, msg Message) error
	RecentMessages(ctx context.Context, limit int) ([]Message, error)
}

type Direction string

const (
	Outgoing Direction = "out"
	Incoming Direction = "in"
)

type Message struct {
	Remote    string
	Direction Direction
	Seq       uint64
	Text      string
	CreatedAt time.Time
}

// Open opens the store for backend at path.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", BackendSQLite:
		return OpenSQLite(path)
	case BackendBolt:
		return OpenBolt(path)
	}
	return nil, fmt.Errorf("unknown store backend %q", backend)
}
