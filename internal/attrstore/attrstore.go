package attrstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/dshills/gocommerce/pkg/types"
)

// Querier is satisfied by *sql.DB and *sql.Tx
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Table names the side table holding one JSON blob per entity
type Table struct {
	Name   string
	Key    string
	Column string
}

var (
	// ProductAttributes holds the open-ended attributes of products
	ProductAttributes = Table{Name: "product_attributes", Key: "product_id", Column: "attributes"}
	// UserPreferences holds the open-ended preferences of users
	UserPreferences = Table{Name: "user_preferences", Key: "user_id", Column: "preferences"}
)

// DecodePolicy decides what happens when a stored blob is not valid JSON
type DecodePolicy int

const (
	// Strict surfaces malformed blobs as types.ErrCorruptData
	Strict DecodePolicy = iota
	// Lenient logs malformed blobs and returns an empty mapping
	Lenient
)

// Store reads and writes attribute blobs keyed by entity id
type Store struct {
	table  Table
	policy DecodePolicy

	selectQuery string
	countQuery  string
	updateQuery string
	insertQuery string
	deleteQuery string
}

// New creates a store over the given table
func New(table Table, policy DecodePolicy) *Store {
	return &Store{
		table:       table,
		policy:      policy,
		selectQuery: fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", table.Column, table.Name, table.Key),
		countQuery:  fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ?", table.Name, table.Key),
		updateQuery: fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?", table.Name, table.Column, table.Key),
		insertQuery: fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (?, ?)", table.Name, table.Key, table.Column),
		deleteQuery: fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table.Name, table.Key),
	}
}

// Table returns the table this store is bound to
func (s *Store) Table() Table { return s.table }

// Get loads the mapping for an entity. A missing row is an empty mapping.
func (s *Store) Get(ctx context.Context, q Querier, id int64) (types.Attributes, error) {
	var blob sql.NullString
	err := q.QueryRowContext(ctx, s.selectQuery, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Attributes{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s for %d: %w", s.table.Name, id, err)
	}
	if !blob.Valid {
		return types.Attributes{}, nil
	}

	attrs, err := types.DecodeAttributes([]byte(blob.String))
	if err != nil {
		if s.policy == Lenient {
			log.Printf("attrstore: ignoring malformed %s for %d: %v", s.table.Name, id, err)
			return types.Attributes{}, nil
		}
		return nil, fmt.Errorf("%s for %d: %w: %v", s.table.Name, id, types.ErrCorruptData, err)
	}
	return attrs, nil
}

// Put stores the mapping for an entity, replacing any previous one
func (s *Store) Put(ctx context.Context, q Querier, id int64, attrs types.Attributes) error {
	blob, err := attrs.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode %s for %d: %w", s.table.Name, id, err)
	}

	var count int
	if err := q.QueryRowContext(ctx, s.countQuery, id).Scan(&count); err != nil {
		return fmt.Errorf("failed to check %s for %d: %w", s.table.Name, id, err)
	}

	query, args := s.insertQuery, []interface{}{id, string(blob)}
	if count > 0 {
		query, args = s.updateQuery, []interface{}{string(blob), id}
	}

	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to write %s for %d: %w", s.table.Name, id, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to write %s for %d: no rows affected", s.table.Name, id)
	}
	return nil
}

// Delete removes the mapping for an entity. Deleting a missing row is not an error.
func (s *Store) Delete(ctx context.Context, q Querier, id int64) error {
	if _, err := q.ExecContext(ctx, s.deleteQuery, id); err != nil {
		return fmt.Errorf("failed to delete %s for %d: %w", s.table.Name, id, err)
	}
	return nil
}
