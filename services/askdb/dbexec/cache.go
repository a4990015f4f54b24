// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dbexec

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// =============================================================================
// ResultCache - Badger-Backed SELECT Result Cache
// =============================================================================

// ResultCache stores materialized row sets in Badger with a native TTL.
//
// # Description
//
// The cache is strictly an optimization and fails open: any store error is
// logged and treated as a miss, and a nil *ResultCache is a valid no-op
// receiver so callers never nil-check. Keys are the SHA-256 of
// (intent, SQL, args), so two questions that bind the same query share an
// entry and any change to the bound values misses.
//
// # Thread Safety
//
// Safe for concurrent use (delegates to Badger).
type ResultCache struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
}

// NewResultCache creates a cache over an open Badger store.
//
// # Inputs
//
//   - db: Open Badger instance. Must not be nil.
//   - ttl: Entry lifetime. Zero or negative uses 60s.
//   - logger: Logger instance. Nil uses slog.Default().
//
// # Outputs
//
//   - *ResultCache: The constructed cache. Never nil.
func NewResultCache(db *badger.DB, ttl time.Duration, logger *slog.Logger) *ResultCache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultCache{db: db, ttl: ttl, logger: logger}
}

// cacheKey derives the store key for one bound query.
func cacheKey(intentID, query string, args []any) []byte {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00", intentID, query)
	for _, a := range args {
		fmt.Fprintf(h, "%v\x00", a)
	}
	sum := h.Sum(nil)
	return append([]byte("rs:"), sum...)
}

// Get looks up a cached row set. A nil receiver always misses.
func (c *ResultCache) Get(intentID, query string, args []any) (*RowSet, bool) {
	if c == nil || c.db == nil {
		return nil, false
	}

	var payload []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(intentID, query, args))
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if err != badger.ErrKeyNotFound {
			c.logger.Warn("result cache read failed",
				slog.String("intent", intentID),
				slog.String("error", err.Error()),
			)
		}
		return nil, false
	}

	var rs RowSet
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&rs); err != nil {
		c.logger.Warn("result cache decode failed, treating as miss",
			slog.String("intent", intentID),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	return &rs, true
}

// Set stores a row set under the query's key. A nil receiver is a no-op.
// Truncated results are never cached: a later request with a higher cap
// must not be served the short version.
func (c *ResultCache) Set(intentID, query string, args []any, rs *RowSet) {
	if c == nil || c.db == nil || rs == nil || rs.Truncated {
		return
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rs); err != nil {
		c.logger.Warn("result cache encode failed",
			slog.String("intent", intentID),
			slog.String("error", err.Error()),
		)
		return
	}

	err := c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(cacheKey(intentID, query, args), buf.Bytes()).WithTTL(c.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		c.logger.Warn("result cache write failed",
			slog.String("intent", intentID),
			slog.String("error", err.Error()),
		)
	}
}

// Close flushes and closes the underlying store.
func (c *ResultCache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}
