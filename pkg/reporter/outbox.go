// Copyright (C) 2025 the Koarl authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package reporter

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/FlowMo7/Koarl/pkg/api"
)

// Outbox is the durable queue of crashes that have not been uploaded yet.
//
// Implementations must keep insertion order in List and must tolerate
// Add being called concurrently with a List/RemoveByIDs pair from an
// upload cycle: removal is always by explicit id list, never a full
// clear, so a racing Add is picked up by the next cycle.
type Outbox interface {
	// Add appends a crash to the queue.
	Add(crash api.Crash) error

	// List returns all queued crashes in insertion order.
	List() ([]api.Crash, error)

	// RemoveByIDs deletes the crashes with the given UUIDs.
	// Unknown ids are ignored.
	RemoveByIDs(ids []string) error
}

const outboxKeyPrefix = "crash/"

// BadgerOutbox is the default Outbox, backed by an embedded BadgerDB so
// queued crashes survive process restarts.
//
// Keys are a zero-padded monotonic sequence under "crash/", which makes
// lexicographic key order equal insertion order.
type BadgerOutbox struct {
	db  *badger.DB
	seq *badger.Sequence
}

// NewBadgerOutbox opens (or creates) a durable outbox at the given
// directory.
func NewBadgerOutbox(path string) (*BadgerOutbox, error) {
	if path == "" {
		return nil, fmt.Errorf("outbox path must not be empty")
	}
	if err := os.MkdirAll(path, 0750); err != nil {
		return nil, fmt.Errorf("create outbox directory %s: %w", path, err)
	}
	opts := badger.DefaultOptions(path).WithLogger(nil).WithSyncWrites(true)
	return openOutbox(opts)
}

// NewInMemoryOutbox returns an outbox without disk persistence, for
// tests and opt-out setups.
func NewInMemoryOutbox() (*BadgerOutbox, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	return openOutbox(opts)
}

func openOutbox(opts badger.Options) (*BadgerOutbox, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open outbox database: %w", err)
	}
	seq, err := db.GetSequence([]byte("outbox-seq"), 100)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open outbox sequence: %w", err)
	}
	return &BadgerOutbox{db: db, seq: seq}, nil
}

// Add appends a crash under the next sequence key.
func (o *BadgerOutbox) Add(crash api.Crash) error {
	data, err := json.Marshal(crash)
	if err != nil {
		return fmt.Errorf("marshal crash %s: %w", crash.UUID, err)
	}
	n, err := o.seq.Next()
	if err != nil {
		return fmt.Errorf("next outbox sequence: %w", err)
	}
	key := []byte(fmt.Sprintf("%s%016d", outboxKeyPrefix, n))
	err = o.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
	if err != nil {
		return fmt.Errorf("store crash %s: %w", crash.UUID, err)
	}
	return nil
}

// List returns all queued crashes in insertion order.
func (o *BadgerOutbox) List() ([]api.Crash, error) {
	var crashes []api.Crash
	err := o.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(outboxKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(outboxKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var crash api.Crash
				if err := json.Unmarshal(val, &crash); err != nil {
					return fmt.Errorf("decode queued crash: %w", err)
				}
				crashes = append(crashes, crash)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return crashes, nil
}

// RemoveByIDs deletes the queued crashes whose UUID is in ids.
func (o *BadgerOutbox) RemoveByIDs(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	var keys [][]byte
	err := o.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(outboxKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(outboxKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var crash api.Crash
				if err := json.Unmarshal(val, &crash); err != nil {
					return nil // skip undecodable entries
				}
				if _, ok := wanted[crash.UUID]; ok {
					keys = append(keys, item.KeyCopy(nil))
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	wb := o.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return fmt.Errorf("delete queued crash: %w", err)
		}
	}
	return wb.Flush()
}

// Close releases the sequence and closes the database.
func (o *BadgerOutbox) Close() error {
	if err := o.seq.Release(); err != nil {
		o.db.Close()
		return err
	}
	return o.db.Close()
}

var _ Outbox = (*BadgerOutbox)(nil)
