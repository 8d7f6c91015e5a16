package seen

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/Hubmakerlabs/reflectr/pkg/slog"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

var _ Store = (*Badger)(nil)

// key prefixes: idPrefix+id holds the serial the id was added at,
// serialPrefix+serial holds the id, so iterating serialPrefix visits ids
// oldest first.
const (
	idPrefix     byte = 1
	serialPrefix byte = 2
	serialLen    = 8
	// evictBatch bounds the deletes done in one transaction.
	evictBatch = 1000
)

// Badger keeps the set in a badger database so that it survives restarts.
type Badger struct {
	Path string
	*badger.DB
	// seq is the monotonic collision free insertion counter.
	seq   *badger.Sequence
	count atomic.Int64
}

// OpenBadger opens or creates the store at path.
func OpenBadger(path string) (b *Badger, err error) {
	b = &Badger{Path: path}
	log.I.Ln("opening mirrored set at", path)
	opts := badger.DefaultOptions(path)
	opts.Compression = options.ZSTD
	opts.CompactL0OnClose = true
	opts.Logger = logger{Level: slog.GetLogLevel(), Label: path}
	if b.DB, err = badger.Open(opts); chk.E(err) {
		return nil, err
	}
	if b.seq, err = b.DB.GetSequence([]byte("sequence"), 1000); chk.E(err) {
		chk.E(b.DB.Close())
		return nil, err
	}
	var n int64
	if err = b.View(func(txn *badger.Txn) (err error) {
		it := txn.NewIterator(badger.IteratorOptions{
			Prefix: []byte{serialPrefix}})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return
	}); chk.E(err) {
		b.Close()
		return nil, err
	}
	b.count.Store(n)
	log.I.F("mirrored set at %s holds %d ids", path, n)
	return
}

func idKey(id string) []byte {
	return append([]byte{idPrefix}, id...)
}

func serialKey(ser []byte) []byte {
	return append([]byte{serialPrefix}, ser...)
}

func (b *Badger) Contains(id string) (found bool, err error) {
	err = b.View(func(txn *badger.Txn) (err error) {
		if _, err = txn.Get(idKey(id)); err == badger.ErrKeyNotFound {
			return nil
		}
		found = err == nil
		return
	})
	return
}

// SerialBytes returns the next insertion serial in big endian so that key
// order is insertion order.
func (b *Badger) SerialBytes() (ser []byte, err error) {
	var s uint64
	if s, err = b.seq.Next(); chk.E(err) {
		return
	}
	ser = make([]byte, serialLen)
	binary.BigEndian.PutUint64(ser, s)
	return
}

func (b *Badger) Add(id string) (err error) {
	if id == "" {
		return fmt.Errorf("cannot add empty id")
	}
	var added bool
	if err = b.Update(func(txn *badger.Txn) (err error) {
		if _, err = txn.Get(idKey(id)); err == nil {
			return
		} else if err != badger.ErrKeyNotFound {
			return
		}
		var ser []byte
		if ser, err = b.SerialBytes(); err != nil {
			return
		}
		if err = txn.Set(idKey(id), ser); err != nil {
			return
		}
		if err = txn.Set(serialKey(ser), []byte(id)); err != nil {
			return
		}
		added = true
		return
	}); chk.E(err) {
		return
	}
	if added {
		b.count.Add(1)
	}
	return
}

func (b *Badger) Len() (int, error) { return int(b.count.Load()), nil }

// Evict deletes the oldest ids until at most max remain, then lets badger
// reclaim value log space.
func (b *Badger) Evict(max int) (removed int, err error) {
	if max < 0 {
		max = 0
	}
	for {
		excess := int(b.count.Load()) - max
		if excess <= 0 {
			break
		}
		if excess > evictBatch {
			excess = evictBatch
		}
		var n int
		if err = b.Update(func(txn *badger.Txn) (err error) {
			n = 0
			it := txn.NewIterator(badger.IteratorOptions{
				Prefix: []byte{serialPrefix}})
			defer it.Close()
			var id []byte
			for it.Rewind(); it.Valid() && n < excess; it.Next() {
				item := it.Item()
				if id, err = item.ValueCopy(nil); err != nil {
					return
				}
				if err = txn.Delete(item.KeyCopy(nil)); err != nil {
					return
				}
				if err = txn.Delete(idKey(string(id))); err != nil {
					return
				}
				n++
			}
			return
		}); chk.E(err) {
			return
		}
		b.count.Add(int64(-n))
		removed += n
		if n == 0 {
			// the counter ran ahead of the database
			b.count.Store(int64(max))
			break
		}
	}
	if removed > 0 {
		log.D.F("evicted %d ids from %s", removed, b.Path)
		if err = b.DB.RunValueLogGC(0.5); err != nil {
			log.T.F("value log gc: %v", err)
			err = nil
		}
	}
	return
}

func (b *Badger) Close() (err error) {
	if b.seq != nil {
		chk.E(b.seq.Release())
	}
	return b.DB.Close()
}

type logger struct {
	Level int
	Label string
}

func (l logger) Errorf(s string, i ...interface{}) {
	if l.Level >= slog.Error {
		log.E.Ln(l.Label + ": " + strings.TrimSpace(fmt.Sprintf(s, i...)))
	}
}

func (l logger) Warningf(s string, i ...interface{}) {
	if l.Level >= slog.Warn {
		log.W.Ln(l.Label + ": " + strings.TrimSpace(fmt.Sprintf(s, i...)))
	}
}

func (l logger) Infof(s string, i ...interface{}) {
	if l.Level >= slog.Debug {
		log.D.Ln(l.Label + ": " + strings.TrimSpace(fmt.Sprintf(s, i...)))
	}
}

func (l logger) Debugf(s string, i ...interface{}) {
	if l.Level >= slog.Trace {
		log.T.Ln(l.Label + ": " + strings.TrimSpace(fmt.Sprintf(s, i...)))
	}
}
