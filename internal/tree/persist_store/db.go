package persist_store

import (
	"io"

	"github.com/cockroachdb/pebble"
)

// DB is the subset of pebble used by the store, so tests can inject
// failures.
type DB interface {
	// Get gets the value for the given key. It returns ErrNotFound if the DB
	// does not contain the key.
	//
	// The returned slice remains valid until the returned Closer is closed.
	// On success, the caller MUST call closer.Close() or a memory leak will
	// occur.
	Get(key []byte) (value []byte, closer io.Closer, err error)

	// NewIter returns an iterator that is unpositioned (Iterator.Valid() will
	// return false). The iterator can be positioned via a call to First.
	NewIter(o *pebble.IterOptions) (Iterator, error)

	// NewBatch returns a new empty write-only batch. If the batch is
	// committed it will be applied to the DB atomically.
	NewBatch() Batch

	// Close closes the database.
	Close() error
}

type Iterator interface {
	// First moves the iterator to the first key in the source. It returns
	// whether the iterator is valid after the operation.
	First() bool

	// Valid returns whether the iterator is valid. An invalid iterator
	// indicates the end of the source has been reached or an error has occurred.
	Valid() bool

	// Key returns the key at the current position. The caller must not modify
	// the contents of the returned slice.
	Key() []byte

	// Value returns the value at the current position. The caller must not
	// modify the contents of the returned slice.
	Value() []byte

	// Next moves the iterator to the next key in the source. It returns whether
	// the iterator is valid after the operation.
	Next() bool

	Error() error

	// Close closes the iterator.
	Close() error
}

type Batch interface {
	// Set adds a Set operation to the batch.
	Set(key, value []byte, opt *pebble.WriteOptions) error

	// Delete adds a Delete operation to the batch.
	Delete(key []byte, opt *pebble.WriteOptions) error

	// DeleteRange deletes all keys in [start, end).
	DeleteRange(start, end []byte, opt *pebble.WriteOptions) error

	// Commit applies the operations in the batch to the database.
	Commit(o *pebble.WriteOptions) error

	// Close closes the batch.
	Close() error
}

// PebbleDB wraps a pebble.DB to implement the DB interface.
type PebbleDB struct {
	db *pebble.DB
}

func (p *PebbleDB) Get(key []byte) (value []byte, closer io.Closer, err error) {
	return p.db.Get(key)
}

func (p *PebbleDB) NewIter(o *pebble.IterOptions) (iter Iterator, err error) {
	return p.db.NewIter(o)
}

func (p *PebbleDB) NewBatch() Batch {
	return p.db.NewBatch()
}

func (p *PebbleDB) Close() error {
	return p.db.Close()
}
