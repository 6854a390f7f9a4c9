// Package journal persists the engine's post-commit event stream to a
// Pebble database. It runs strictly outside the matching/swap critical
// sections: cmd/node feeds it from the engine's event channel.
package journal

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
)

// Journal is an append-only event log. Keys are "e:<16-hex-seq>" so
// lexicographic order is append order.
type Journal struct {
	db  *pebble.DB
	seq atomic.Uint64
}

// Open opens (or creates) the journal at path and resumes the sequence from
// the last persisted entry.
func Open(path string) (*Journal, error) {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(32 << 20),
		MemTableSize: 16 << 20,
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open journal at %s: %w", path, err)
	}

	j := &Journal{db: db}
	if last, ok := j.lastSeq(); ok {
		j.seq.Store(last)
	}
	return j, nil
}

func (j *Journal) Close() error { return j.db.Close() }

func eventKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("e:%016x", seq))
}

// Append marshals v as JSON and persists it under the next sequence number.
func (j *Journal) Append(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}
	seq := j.seq.Add(1)
	if err := j.db.Set(eventKey(seq), data, pebble.Sync); err != nil {
		return fmt.Errorf("append journal entry %d: %w", seq, err)
	}
	return nil
}

// Recent returns up to n most recent entries, oldest first.
func (j *Journal) Recent(n int) ([]json.RawMessage, error) {
	if n <= 0 {
		return nil, nil
	}
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("e:"),
		UpperBound: []byte("e;"), // ';' sorts just after ':'
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	out := make([]json.RawMessage, 0, n)
	for ok := iter.Last(); ok && len(out) < n; ok = iter.Prev() {
		v := make([]byte, len(iter.Value()))
		copy(v, iter.Value())
		out = append(out, v)
	}
	// Reverse into chronological order.
	for i, jx := 0, len(out)-1; i < jx; i, jx = i+1, jx-1 {
		out[i], out[jx] = out[jx], out[i]
	}
	return out, nil
}

// lastSeq finds the highest persisted sequence number.
func (j *Journal) lastSeq() (uint64, bool) {
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("e:"),
		UpperBound: []byte("e;"),
	})
	if err != nil {
		return 0, false
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, false
	}
	var seq uint64
	if _, err := fmt.Sscanf(string(iter.Key()), "e:%016x", &seq); err != nil {
		return 0, false
	}
	return seq, true
}
