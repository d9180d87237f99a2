// Copyright (C) 2025 the Koarl authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/FlowMo7/Koarl/pkg/api"
	"github.com/FlowMo7/Koarl/services/collector/grouping"
	"github.com/FlowMo7/Koarl/services/collector/storage"
)

// Key layout:
//
//	app/<hash>                   -> api.AppData (content-addressed dimension)
//	device/<hash>                -> api.DeviceData
//	crash/<package>/<uuid>       -> storedCrash
//	fp/<package>/<fingerprint>   -> group id bytes
//
// Crashes are partitioned by package name so every read path scans one
// package's prefix. Group membership is resolved at write time through
// the fingerprint index; group aggregates are computed at read time.
const (
	appKeyPrefix    = "app/"
	deviceKeyPrefix = "device/"
	crashKeyPrefix  = "crash/"
	fpKeyPrefix     = "fp/"
)

// storedCrash is the persisted crash row. Dimensions are stored by
// reference; the group id and fingerprint are assigned at insert and
// the group id never changes afterwards.
type storedCrash struct {
	Crash       api.Crash   `json:"crash"`
	AppData     api.AppData `json:"appData"`
	DeviceKey   string      `json:"deviceKey,omitempty"`
	GroupID     string      `json:"groupId"`
	Fingerprint string      `json:"fingerprint"`
}

// CrashStore persists crashes and derives crash groups.
//
// Thread Safety: safe for concurrent use. Concurrent inserts racing on
// the same new fingerprint are resolved by Badger's transaction
// conflict detection: one insert aborts with ErrConflict and the
// client's retry loop re-submits it.
type CrashStore struct {
	db     *storage.DB
	logger *slog.Logger
}

// NewCrashStore wraps an open storage handle. Pass nil to use the
// default logger.
func NewCrashStore(db *storage.DB, logger *slog.Logger) *CrashStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CrashStore{db: db, logger: logger}
}

// Insert stores a batch of crashes in one transaction.
//
// Description:
//
//	Dimensions (app, device) are content-addressed and written
//	idempotently. Each crash gets its group assigned through the
//	fingerprint index: an exact fingerprint match within the package
//	reuses the existing group id, otherwise a fresh id is minted and
//	indexed. Crashes whose UUID already exists are skipped, making
//	client retries of a half-acknowledged batch safe.
func (s *CrashStore) Insert(ctx context.Context, deviceData *api.DeviceData, appData api.AppData, crashes []api.Crash) error {
	if appData.PackageName == "" {
		return errors.New("packageName must not be empty")
	}

	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		if _, err := putDimension(txn, appKeyPrefix, appData); err != nil {
			return fmt.Errorf("store app dimension: %w", err)
		}
		deviceKey := ""
		if deviceData != nil {
			key, err := putDimension(txn, deviceKeyPrefix, *deviceData)
			if err != nil {
				return fmt.Errorf("store device dimension: %w", err)
			}
			deviceKey = key
		}

		for _, crash := range crashes {
			if crash.UUID == "" {
				return errors.New("crash without uuid")
			}
			crashKey := []byte(crashKeyPrefix + appData.PackageName + "/" + crash.UUID)
			if _, err := txn.Get(crashKey); err == nil {
				// Duplicate delivery of an already stored crash.
				continue
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			fingerprint := grouping.Fingerprint(&crash.Throwable)
			groupID, err := resolveGroup(txn, appData.PackageName, fingerprint)
			if err != nil {
				return err
			}

			record := storedCrash{
				Crash:       crash,
				AppData:     appData,
				DeviceKey:   deviceKey,
				GroupID:     groupID,
				Fingerprint: fingerprint,
			}
			value, err := json.Marshal(record)
			if err != nil {
				return fmt.Errorf("encode crash %s: %w", crash.UUID, err)
			}
			if err := txn.Set(crashKey, value); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

// resolveGroup looks up the fingerprint index and mints a new group id
// on a miss. Runs inside the insert transaction so a concurrent insert
// of the same new fingerprint conflicts instead of forking the group.
func resolveGroup(txn *badger.Txn, packageName, fingerprint string) (string, error) {
	fpKey := []byte(fpKeyPrefix + packageName + "/" + fingerprint)
	item, err := txn.Get(fpKey)
	if err == nil {
		var groupID string
		err = item.Value(func(val []byte) error {
			groupID = string(val)
			return nil
		})
		return groupID, err
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return "", err
	}
	groupID := uuid.NewString()
	if err := txn.Set(fpKey, []byte(groupID)); err != nil {
		return "", err
	}
	return groupID, nil
}

// putDimension writes a content-addressed dimension row and returns its
// key. Writing the same content twice is a no-op overwrite.
func putDimension(txn *badger.Txn, prefix string, dimension any) (string, error) {
	value, err := json.Marshal(dimension)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(value)
	key := prefix + hex.EncodeToString(sum[:16])
	return key, txn.Set([]byte(key), value)
}

// GetCrashes returns all crashes matching the filter, in key order
// (package name, then UUID).
func (s *CrashStore) GetCrashes(ctx context.Context, filter CrashFilter) ([]CrashRecord, error) {
	var records []CrashRecord
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		prefix := crashKeyPrefix
		if filter.PackageName != "" {
			prefix += filter.PackageName + "/"
		}
		return s.iterateCrashes(txn, prefix, func(rec *storedCrash) error {
			if !filter.matches(rec) {
				return nil
			}
			joined, err := s.join(txn, rec)
			if err != nil {
				return err
			}
			records = append(records, joined)
			return nil
		})
	})
	return records, err
}

// GetCrash returns one crash by package and UUID, or ErrNotFound.
func (s *CrashStore) GetCrash(ctx context.Context, packageName, crashUUID string) (*CrashRecord, error) {
	var record *CrashRecord
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		rec, err := s.getStored(txn, packageName, crashUUID)
		if err != nil {
			return err
		}
		joined, err := s.join(txn, rec)
		if err != nil {
			return err
		}
		record = &joined
		return nil
	})
	return record, err
}

// GetCrashesOfGroup returns the crashes of one group, or ErrNotFound
// when the group has no members.
func (s *CrashStore) GetCrashesOfGroup(ctx context.Context, packageName, groupID string) ([]CrashRecord, error) {
	var records []CrashRecord
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return s.iterateCrashes(txn, crashKeyPrefix+packageName+"/", func(rec *storedCrash) error {
			if rec.GroupID != groupID {
				return nil
			}
			joined, err := s.join(txn, rec)
			if err != nil {
				return err
			}
			records = append(records, joined)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("group %s: %w", groupID, ErrNotFound)
	}
	return records, nil
}

// GetCrashGroups aggregates all crashes of a package into groups.
//
// The representative throwable and fatality flag come from the group's
// first stored member; the count covers all members.
func (s *CrashStore) GetCrashGroups(ctx context.Context, packageName string) ([]CrashGroup, error) {
	var (
		order  []string
		groups = make(map[string]*CrashGroup)
	)
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return s.iterateCrashes(txn, crashKeyPrefix+packageName+"/", func(rec *storedCrash) error {
			group, ok := groups[rec.GroupID]
			if !ok {
				group = &CrashGroup{
					GroupID:     rec.GroupID,
					PackageName: rec.AppData.PackageName,
					Throwable:   *similaritiesOf(&rec.Crash.Throwable),
					IsFatal:     rec.Crash.IsFatal,
				}
				groups[rec.GroupID] = group
				order = append(order, rec.GroupID)
			}
			group.NumberOfCrashes++
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	result := make([]CrashGroup, 0, len(order))
	for _, id := range order {
		result = append(result, *groups[id])
	}
	return result, nil
}

// GetCrashGroup returns one aggregated group, or ErrNotFound.
func (s *CrashStore) GetCrashGroup(ctx context.Context, packageName, groupID string) (*CrashGroup, error) {
	groups, err := s.GetCrashGroups(ctx, packageName)
	if err != nil {
		return nil, err
	}
	for i := range groups {
		if groups[i].GroupID == groupID {
			return &groups[i], nil
		}
	}
	return nil, fmt.Errorf("group %s: %w", groupID, ErrNotFound)
}

// UpdateThrowable replaces the throwable of a stored crash, typically
// after a mapping upload made a better deobfuscation possible.
//
// The crash keeps its UUID, dimensions and group id. The fingerprint is
// recomputed from the new throwable and indexed to the existing group,
// so future crashes arriving in deobfuscated form group together with
// the rewritten ones.
func (s *CrashStore) UpdateThrowable(ctx context.Context, packageName, crashUUID string, throwable *api.Throwable) error {
	if throwable == nil {
		return errors.New("throwable must not be nil")
	}
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		rec, err := s.getStored(txn, packageName, crashUUID)
		if err != nil {
			return err
		}
		rec.Crash.Throwable = *throwable
		rec.Fingerprint = grouping.Fingerprint(throwable)

		fpKey := []byte(fpKeyPrefix + packageName + "/" + rec.Fingerprint)
		if _, err := txn.Get(fpKey); errors.Is(err, badger.ErrKeyNotFound) {
			if err := txn.Set(fpKey, []byte(rec.GroupID)); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		value, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return txn.Set([]byte(crashKeyPrefix+packageName+"/"+crashUUID), value)
	})
}

// GetStoredApps lists the distinct applications seen so far, one entry
// per package name.
func (s *CrashStore) GetStoredApps(ctx context.Context) ([]App, error) {
	seen := make(map[string]bool)
	var apps []App
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return iterateJSON(txn, appKeyPrefix, func(data *api.AppData) error {
			if seen[data.PackageName] {
				return nil
			}
			seen[data.PackageName] = true
			apps = append(apps, App{PackageName: data.PackageName, AppName: data.AppName})
			return nil
		})
	})
	return apps, err
}

// GetStoredVersionsForPackageName lists the distinct app builds stored
// for one package.
func (s *CrashStore) GetStoredVersionsForPackageName(ctx context.Context, packageName string) ([]api.AppData, error) {
	var versions []api.AppData
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return iterateJSON(txn, appKeyPrefix, func(data *api.AppData) error {
			if data.PackageName == packageName {
				versions = append(versions, *data)
			}
			return nil
		})
	})
	return versions, err
}

// GetAppNameForPackageName resolves the display name of a package, or
// ErrNotFound.
func (s *CrashStore) GetAppNameForPackageName(ctx context.Context, packageName string) (string, error) {
	versions, err := s.GetStoredVersionsForPackageName(ctx, packageName)
	if err != nil {
		return "", err
	}
	if len(versions) == 0 {
		return "", fmt.Errorf("package %s: %w", packageName, ErrNotFound)
	}
	return versions[0].AppName, nil
}

// getStored fetches and decodes one crash row.
func (s *CrashStore) getStored(txn *badger.Txn, packageName, crashUUID string) (*storedCrash, error) {
	item, err := txn.Get([]byte(crashKeyPrefix + packageName + "/" + crashUUID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("crash %s: %w", crashUUID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	rec := &storedCrash{}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, rec)
	})
	if err != nil {
		return nil, fmt.Errorf("decode crash %s: %w", crashUUID, err)
	}
	return rec, nil
}

// join resolves the device dimension reference of a stored crash.
func (s *CrashStore) join(txn *badger.Txn, rec *storedCrash) (CrashRecord, error) {
	record := CrashRecord{
		Crash:   rec.Crash,
		AppData: rec.AppData,
		GroupID: rec.GroupID,
	}
	if rec.DeviceKey == "" {
		return record, nil
	}
	item, err := txn.Get([]byte(rec.DeviceKey))
	if errors.Is(err, badger.ErrKeyNotFound) {
		// Dimension rows are never deleted, but a missing one must not
		// take the whole read down.
		s.logger.Warn("dangling device dimension", "key", rec.DeviceKey)
		return record, nil
	}
	if err != nil {
		return record, err
	}
	device := &api.DeviceData{}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, device)
	})
	if err != nil {
		return record, err
	}
	record.DeviceData = device
	return record, nil
}

// iterateCrashes walks a crash key prefix in key order.
func (s *CrashStore) iterateCrashes(txn *badger.Txn, prefix string, fn func(rec *storedCrash) error) error {
	return iterateJSON(txn, prefix, fn)
}

// iterateJSON prefix-scans and decodes every value under prefix.
func iterateJSON[T any](txn *badger.Txn, prefix string, fn func(value *T) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
		value := new(T)
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, value)
		})
		if err != nil {
			return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
		}
		if err := fn(value); err != nil {
			return err
		}
	}
	return nil
}
