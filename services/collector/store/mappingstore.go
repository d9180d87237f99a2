// Copyright (C) 2025 the Koarl authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/FlowMo7/Koarl/services/collector/storage"
)

// mappingKeyPrefix partitions mapping rows:
//
//	mapping/<package>/<versionCode %016d> -> raw mapping text
//
// Zero-padded version codes keep the prefix scan of a package's
// versions in numeric order.
const mappingKeyPrefix = "mapping/"

// MappingStore persists raw ProGuard/R8 mapping files keyed by package
// and version code.
//
// Thread Safety: safe for concurrent use; a re-upload for the same
// (package, versionCode) overwrites the previous text.
type MappingStore struct {
	db     *storage.DB
	logger *slog.Logger
}

// NewMappingStore wraps an open storage handle. Pass nil to use the
// default logger.
func NewMappingStore(db *storage.DB, logger *slog.Logger) *MappingStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MappingStore{db: db, logger: logger}
}

func mappingKey(packageName string, versionCode int64) []byte {
	return []byte(fmt.Sprintf("%s%s/%016d", mappingKeyPrefix, packageName, versionCode))
}

// InsertMapping stores (or replaces) the mapping text of one app build.
func (s *MappingStore) InsertMapping(ctx context.Context, packageName string, versionCode int64, text string) error {
	if packageName == "" {
		return errors.New("packageName must not be empty")
	}
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(mappingKey(packageName, versionCode), []byte(text))
	})
}

// GetMapping returns the mapping text of one app build, or ErrNotFound.
func (s *MappingStore) GetMapping(ctx context.Context, packageName string, versionCode int64) (string, error) {
	var text string
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(mappingKey(packageName, versionCode))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("mapping %s/%d: %w", packageName, versionCode, ErrNotFound)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			text = string(val)
			return nil
		})
	})
	return text, err
}

// GetVersionCodes lists the version codes a package has mappings for,
// in ascending order.
func (s *MappingStore) GetVersionCodes(ctx context.Context, packageName string) ([]int64, error) {
	prefix := []byte(mappingKeyPrefix + packageName + "/")
	var codes []int64
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			code, err := strconv.ParseInt(key[len(prefix):], 10, 64)
			if err != nil {
				s.logger.Warn("skipping malformed mapping key", "key", key)
				continue
			}
			codes = append(codes, code)
		}
		return nil
	})
	return codes, err
}
