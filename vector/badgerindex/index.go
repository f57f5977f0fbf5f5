// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package badgerindex provides an embedded vector index backed by BadgerDB.
// It keeps embeddings local to the process, for deployments that do not run
// a dedicated vector database.
package badgerindex

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/poiesic/kbsync/core"
	"github.com/poiesic/kbsync/vector"
)

// Index stores embedding records in a BadgerDB instance. Each record is
// written under its vector ID, with a secondary index keyed by document ID
// so document-scoped deletes do not scan the whole keyspace.
type Index struct {
	db     *badger.DB
	logger *slog.Logger
}

var _ vector.Index = (*Index)(nil)

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// Open opens a BadgerDB-backed vector index at the specified path.
// Creates the directory if it doesn't exist. Pass inMemory=true for an
// ephemeral index (used by tests).
func Open(filePath string, inMemory bool) (*Index, error) {
	var opts badger.Options

	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		info, err := os.Stat(filePath)
		if err != nil {
			if os.IsNotExist(err) {
				if err := os.MkdirAll(filePath, 0755); err != nil {
					return nil, err
				}
				info, err = os.Stat(filePath)
				if err != nil {
					return nil, err
				}
			} else {
				return nil, err
			}
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", filePath)
		}
		opts = badger.DefaultOptions(filePath)
	}

	opts.Logger = &badgerLoggerAdapter{logger: slog.Default()}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Index{
		db:     db,
		logger: slog.Default(),
	}, nil
}

// Close closes the underlying database.
func (x *Index) Close() error {
	return x.db.Close()
}

// IsClosed returns true if the database is closed.
func (x *Index) IsClosed() bool {
	return x.db.IsClosed()
}

// withTx executes a function within a BadgerDB transaction.
// The transaction is automatically discarded if fn returns an error.
func (x *Index) withTx(fn func(tx *badger.Txn) error, isWrite bool) error {
	tx := x.db.NewTransaction(isWrite)
	defer tx.Discard()
	return fn(tx)
}

// Upsert writes the records, replacing any with matching IDs. The document
// index entry is rewritten alongside the record; since vector IDs are
// derived from (document, position), a record never migrates between
// documents.
func (x *Index) Upsert(ctx context.Context, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}
	err := x.withTx(func(tx *badger.Txn) error {
		for i := range records {
			record := &records[i]
			if err := tx.Set(makeRecordKey(record.ID), MarshalRecord(record)); err != nil {
				return err
			}
			docKey := makeDocIndexKey(record.Metadata.DocumentID, record.ID)
			if err := tx.Set(docKey, MarshalID(record.ID)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return fmt.Errorf("%w: badger upsert: %v", core.ErrStoreWrite, err)
	}
	return nil
}

// Delete removes records by ID. Missing IDs are ignored.
func (x *Index) Delete(ctx context.Context, ids []core.ID) error {
	if len(ids) == 0 {
		return nil
	}
	err := x.withTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			record, err := x.readRecord(tx, makeRecordKey(id))
			if err != nil {
				return err
			}
			if record == nil {
				continue
			}
			if err := tx.Delete(makeRecordKey(id)); err != nil {
				return err
			}
			if err := tx.Delete(makeDocIndexKey(record.Metadata.DocumentID, id)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return fmt.Errorf("%w: badger delete: %v", core.ErrStoreWrite, err)
	}
	return nil
}

// DeleteByDocument removes every record indexed under the document.
func (x *Index) DeleteByDocument(ctx context.Context, documentID string) error {
	err := x.withTx(func(tx *badger.Txn) error {
		prefix := makePartialDocIndexKey(documentID)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)

		// Collect keys before deleting; badger iterators don't tolerate
		// writes under their feet.
		var recordKeys, indexKeys [][]byte
		for iter.Rewind(); iter.Valid(); iter.Next() {
			key := iter.Item().KeyCopy(nil)
			id, err := recordIDFromDocIndexKey(key)
			if err != nil {
				iter.Close()
				return err
			}
			recordKeys = append(recordKeys, makeRecordKey(id))
			indexKeys = append(indexKeys, key)
		}
		iter.Close()

		for i := range recordKeys {
			if err := tx.Delete(recordKeys[i]); err != nil {
				return err
			}
			if err := tx.Delete(indexKeys[i]); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return fmt.Errorf("%w: badger delete by document: %v", core.ErrStoreWrite, err)
	}
	return nil
}

// Get returns the record stored under the ID, or nil if absent.
func (x *Index) Get(ctx context.Context, id core.ID) (*vector.Record, error) {
	var record *vector.Record
	err := x.withTx(func(tx *badger.Txn) error {
		var err error
		record, err = x.readRecord(tx, makeRecordKey(id))
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Clear drops every record in the index. Used by maintenance tooling.
func (x *Index) Clear(ctx context.Context) error {
	if err := x.db.DropAll(); err != nil {
		return fmt.Errorf("%w: badger drop all: %v", core.ErrStoreWrite, err)
	}
	return nil
}

// readRecord reads a record within a transaction.
// Returns nil, nil if the key doesn't exist.
func (x *Index) readRecord(tx *badger.Txn, key []byte) (*vector.Record, error) {
	item, err := tx.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var record *vector.Record
	err = item.Value(func(val []byte) error {
		var err error
		record, err = UnmarshalRecord(val)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}
