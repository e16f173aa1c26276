// Package pebblestore stores the order book in an embedded Pebble database.
package pebblestore

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/olyamironova/eos-exchange/internal/domain"
	"github.com/olyamironova/eos-exchange/internal/port"
)

var _ port.Repository = (*Store)(nil)

var (
	orderPrefix = []byte("ord:")
	sidePrefix  = []byte("side:")
	seqKey      = []byte("seq")
	fillPrefix  = []byte("fill:")
	fillSeqKey  = []byte("fillseq")

	errTxDone = errors.New("pebble: transaction already finished")
)

// Store keeps each order under ord:<id> as JSON, with a secondary index
// side:<SIDE>:<id> giving the (side, id) scan order. seq holds the last id
// issued. Fills are journaled under fill:<order id>:<fillseq> for each order
// they name.
type Store struct {
	db *pebble.DB
}

// NewStore opens a Pebble database at the given path.
func NewStore(dbPath string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                    pebble.NewCache(64 << 20),
		MemTableSize:             32 << 20,
		MaxConcurrentCompactions: func() int { return 2 },
		L0CompactionThreshold:    2,
		L0StopWritesThreshold:    12,
		MaxOpenFiles:             1000,
		BytesPerSync:             512 << 10,
	}
	return open(dbPath, opts)
}

// NewMemStore opens a store backed by an in-memory filesystem.
func NewMemStore() (*Store, error) {
	return open("", &pebble.Options{FS: vfs.NewMem()})
}

func open(dbPath string, opts *pebble.Options) (*Store, error) {
	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dbPath, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) BeginTx(ctx context.Context) (port.Tx, error) {
	return &storeTx{batch: s.db.NewIndexedBatch()}, nil
}

func orderKey(id uint64) []byte {
	return append(append([]byte(nil), orderPrefix...), encodeID(id)...)
}

func sideIndexPrefix(side domain.Side) []byte {
	k := append(append([]byte(nil), sidePrefix...), side...)
	return append(k, ':')
}

func sideKey(side domain.Side, id uint64) []byte {
	return append(sideIndexPrefix(side), encodeID(id)...)
}

func fillOrderPrefix(id uint64) []byte {
	k := append(append([]byte(nil), fillPrefix...), encodeID(id)...)
	return append(k, ':')
}

// encodeID renders id zero padded so keys sort numerically.
func encodeID(id uint64) []byte {
	return []byte(fmt.Sprintf("%020d", id))
}

// keyUpperBound returns the smallest key greater than every key with the
// given prefix.
func keyUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

type storeTx struct {
	batch *pebble.Batch
	done  bool
}

func (t *storeTx) get(key []byte) ([]byte, error) {
	data, closer, err := t.batch.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return bytes.Clone(data), nil
}

func (t *storeTx) load(id uint64) (*domain.Order, error) {
	data, err := t.get(orderKey(id))
	if err != nil {
		return nil, fmt.Errorf("failed to get order %d: %w", id, err)
	}
	if data == nil {
		return nil, fmt.Errorf("%w: id %d", domain.ErrNotFound, id)
	}
	var o domain.Order
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order %d: %w", id, err)
	}
	return &o, nil
}

func (t *storeTx) put(o *domain.Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}
	if err := t.batch.Set(orderKey(o.ID), data, nil); err != nil {
		return fmt.Errorf("failed to save order %d: %w", o.ID, err)
	}
	return nil
}

// next increments the counter stored under key and returns the new value.
func (t *storeTx) next(key []byte) (uint64, error) {
	raw, err := t.get(key)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", key, err)
	}
	var last uint64
	if len(raw) == 8 {
		last = binary.BigEndian.Uint64(raw)
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], last+1)
	if err := t.batch.Set(key, buf[:], nil); err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", key, err)
	}
	return last + 1, nil
}

func (t *storeTx) Insert(ctx context.Context, o *domain.Order) (uint64, error) {
	if t.done {
		return 0, errTxDone
	}
	id, err := t.next(seqKey)
	if err != nil {
		return 0, err
	}

	cp := o.Clone()
	cp.ID = id
	if err := t.put(cp); err != nil {
		return 0, err
	}
	if err := t.batch.Set(sideKey(cp.Side, id), nil, nil); err != nil {
		return 0, fmt.Errorf("failed to index order %d: %w", id, err)
	}
	return id, nil
}

func (t *storeTx) Find(ctx context.Context, id uint64) (*domain.Order, error) {
	if t.done {
		return nil, errTxDone
	}
	return t.load(id)
}

func (t *storeTx) Remove(ctx context.Context, id uint64) error {
	if t.done {
		return errTxDone
	}
	o, err := t.load(id)
	if err != nil {
		return err
	}
	if err := t.batch.Delete(orderKey(id), nil); err != nil {
		return fmt.Errorf("failed to delete order %d: %w", id, err)
	}
	if err := t.batch.Delete(sideKey(o.Side, id), nil); err != nil {
		return fmt.Errorf("failed to unindex order %d: %w", id, err)
	}
	return nil
}

func (t *storeTx) Modify(ctx context.Context, id uint64, fn func(o *domain.Order) error) error {
	if t.done {
		return errTxDone
	}
	o, err := t.load(id)
	if err != nil {
		return err
	}
	side := o.Side
	if err := fn(o); err != nil {
		return err
	}
	o.ID = id
	if o.Side != side {
		if err := t.batch.Delete(sideKey(side, id), nil); err != nil {
			return fmt.Errorf("failed to unindex order %d: %w", id, err)
		}
		if err := t.batch.Set(sideKey(o.Side, id), nil, nil); err != nil {
			return fmt.Errorf("failed to index order %d: %w", id, err)
		}
	}
	return t.put(o)
}

func (t *storeTx) ScanBySide(ctx context.Context, side domain.Side) ([]*domain.Order, error) {
	if t.done {
		return nil, errTxDone
	}
	prefix := sideIndexPrefix(side)
	iter, err := t.batch.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}

	var ids []uint64
	for iter.First(); iter.Valid(); iter.Next() {
		id, err := strconv.ParseUint(string(iter.Key()[len(prefix):]), 10, 64)
		if err != nil {
			_ = iter.Close()
			return nil, fmt.Errorf("%w: bad index key %q", domain.ErrInvalidState, iter.Key())
		}
		ids = append(ids, id)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", side, err)
	}

	res := make([]*domain.Order, 0, len(ids))
	for _, id := range ids {
		o, err := t.load(id)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, nil
}

func (t *storeTx) AppendFill(ctx context.Context, f domain.Fill) error {
	if t.done {
		return errTxDone
	}
	seq, err := t.next(fillSeqKey)
	if err != nil {
		return err
	}
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal fill: %w", err)
	}
	for _, id := range []uint64{f.MakerID, f.TakerID} {
		if id == 0 {
			continue
		}
		key := append(fillOrderPrefix(id), encodeID(seq)...)
		if err := t.batch.Set(key, data, nil); err != nil {
			return fmt.Errorf("failed to save fill for order %d: %w", id, err)
		}
	}
	return nil
}

func (t *storeTx) FillsFor(ctx context.Context, id uint64) ([]domain.Fill, error) {
	if t.done {
		return nil, errTxDone
	}
	prefix := fillOrderPrefix(id)
	iter, err := t.batch.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	var res []domain.Fill
	for iter.First(); iter.Valid(); iter.Next() {
		var f domain.Fill
		if err := json.Unmarshal(iter.Value(), &f); err != nil {
			return nil, fmt.Errorf("failed to unmarshal fill %q: %w", iter.Key(), err)
		}
		res = append(res, f)
	}
	return res, nil
}

func (t *storeTx) Commit(ctx context.Context) error {
	if t.done {
		return errTxDone
	}
	t.done = true
	defer t.batch.Close()
	if err := t.batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

func (t *storeTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	return t.batch.Close()
}
