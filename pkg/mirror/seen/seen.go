// Package seen is the mirrored set: the ids of events that have already
// been through a delivery pass. It is the only guard against two mirrored
// relays bouncing the same event back and forth, so an id is never dropped
// except by Evict, which removes the oldest insertions first.
package seen

import (
	"os"

	"github.com/Hubmakerlabs/reflectr/pkg/slog"
)

var log, chk = slog.New(os.Stderr)

// Store is a set of event ids with insertion order. Implementations are not
// required to be safe for concurrent use; the coordinator owns its store.
type Store interface {
	// Contains reports whether id has been added and not evicted.
	Contains(id string) (bool, error)
	// Add records id. Adding an id that is present does not refresh it.
	Add(id string) error
	// Len is the number of ids held.
	Len() (int, error)
	// Evict removes the oldest ids until at most max remain.
	Evict(max int) (removed int, err error)
	Close() error
}

// Open returns a persistent store at path, or an in-memory one when path is
// empty.
func Open(path string) (s Store, err error) {
	if path == "" {
		log.I.Ln("mirrored set is kept in memory")
		return NewMemory(), nil
	}
	return OpenBadger(path)
}
