// Package bolt persists the pending queue in a bbolt database file: one
// bucket, one named key holding the serialized ordered collection.
// bbolt's exclusive write transactions give every read-modify-write the
// single-writer discipline the queue requires, across all goroutines
// sharing the store.
package bolt

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	bbolt "go.etcd.io/bbolt"

	"mpesa-capture/internal/domain"
	"mpesa-capture/internal/pending"
)

var (
	bucketName = []byte("pending")
	storeKey   = []byte("transactions")
)

// Store is a bbolt-backed pending queue.
type Store struct {
	db  *bbolt.DB
	log zerolog.Logger
}

// Open opens (creating if necessary) the store file at path.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open pending store %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init pending store %s: %w", path, err)
	}

	return &Store{db: db, log: log}, nil
}

// Append implements pending.Store.
func (s *Store) Append(ctx context.Context, rec domain.TransactionRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("append pending: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		records := pending.Decode(b.Get(storeKey), s.log)
		records = pending.Upsert(records, rec)
		data, err := pending.Encode(records)
		if err != nil {
			return err
		}
		return b.Put(storeKey, data)
	})
	if err != nil {
		return fmt.Errorf("append pending %s: %w", rec.Code, err)
	}

	s.log.Debug().Str("code", rec.Code).Msg("Pending transaction stored")
	return nil
}

// List implements pending.Store.
func (s *Store) List(ctx context.Context) ([]domain.TransactionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records []domain.TransactionRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		records = pending.Decode(tx.Bucket(bucketName).Get(storeKey), s.log)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	return records, nil
}

// RemoveByCode implements pending.Store.
func (s *Store) RemoveByCode(ctx context.Context, code string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var found bool
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		records := pending.Decode(b.Get(storeKey), s.log)

		var kept []domain.TransactionRecord
		kept, found = pending.RemoveCode(records, code)
		if !found {
			return nil
		}

		data, err := pending.Encode(kept)
		if err != nil {
			return err
		}
		return b.Put(storeKey, data)
	})
	if err != nil {
		return false, fmt.Errorf("remove pending %s: %w", code, err)
	}
	return found, nil
}

// Clear implements pending.Store.
func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		data, err := pending.Encode(nil)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketName).Put(storeKey, data)
	})
	if err != nil {
		return fmt.Errorf("clear pending: %w", err)
	}
	return nil
}

// Close closes the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ pending.Store = (*Store)(nil)
