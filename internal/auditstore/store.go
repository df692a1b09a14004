// Package auditstore is the embedded key-value store backing bulky
// row-level audit detail: merge-pair tables,
// standardize-value tables, and per-cell transform rows, keyed by
// audit_entry_id and capped at domain.AuditDetailCap rows. Detail is
// written once at command-apply time and read back only when a caller
// asks to expand an audit entry; it is never consulted by undo/redo.
// Keying style (`prefix:id:seq`) follows a common badger key-encoding
// convention.
package auditstore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/cleanslate/core/internal/domain"
)

const (
	prefixRow  = "row:"
	prefixMeta = "meta:"
)

// Store wraps an embedded Badger database.
type Store struct {
	db *badger.DB
}

// Open opens (creating if absent) the audit detail database at dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, domain.NewErrIO(dir, err.Error())
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

type meta struct {
	Count  int  `json:"count"`
	Capped bool `json:"capped"`
}

// PutRows appends rows of row-level detail under auditEntryID, truncating
// at domain.AuditDetailCap and recording the capped flag.
func (s *Store) PutRows(auditEntryID string, rows []map[string]interface{}) error {
	return s.db.Update(func(txn *badger.Txn) error {
		m := s.readMetaTxn(txn, auditEntryID)
		for _, r := range rows {
			if m.Count >= domain.AuditDetailCap {
				m.Capped = true
				break
			}
			data, err := json.Marshal(r)
			if err != nil {
				return err
			}
			key := rowKey(auditEntryID, m.Count)
			if err := txn.Set(key, data); err != nil {
				return err
			}
			m.Count++
		}
		metaData, err := json.Marshal(m)
		if err != nil {
			return err
		}
		return txn.Set(metaKey(auditEntryID), metaData)
	})
}

// Rows returns every stored row for auditEntryID, in insertion order.
func (s *Store) Rows(auditEntryID string) ([]map[string]interface{}, error) {
	var out []map[string]interface{}
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(prefixRow + auditEntryID + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var r map[string]interface{}
				if err := json.Unmarshal(val, &r); err != nil {
					return err
				}
				out = append(out, r)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, domain.NewErrIO(auditEntryID, err.Error())
	}
	return out, nil
}

// Has reports whether any row-level detail exists for auditEntryID.
func (s *Store) Has(auditEntryID string) bool {
	m := s.readMeta(auditEntryID)
	return m.Count > 0
}

// IsCapped reports whether auditEntryID's detail was truncated at
// domain.AuditDetailCap.
func (s *Store) IsCapped(auditEntryID string) bool {
	return s.readMeta(auditEntryID).Capped
}

func (s *Store) readMeta(auditEntryID string) meta {
	var m meta
	_ = s.db.View(func(txn *badger.Txn) error {
		m = s.readMetaTxn(txn, auditEntryID)
		return nil
	})
	return m
}

func (s *Store) readMetaTxn(txn *badger.Txn, auditEntryID string) meta {
	var m meta
	item, err := txn.Get(metaKey(auditEntryID))
	if err != nil {
		return m
	}
	_ = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &m)
	})
	return m
}

func rowKey(auditEntryID string, seq int) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(seq))
	return []byte(fmt.Sprintf("%s%s:%x", prefixRow, auditEntryID, b))
}

func metaKey(auditEntryID string) []byte {
	return []byte(prefixMeta + auditEntryID)
}
