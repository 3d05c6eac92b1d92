// Package rowstore talks to the hosted table API. Every call is a fresh
// round trip; nothing is cached and nothing is retried.
package rowstore

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotConfigured = errors.New("backend not configured")
	ErrNotFound      = errors.New("row not found")
)

// Store is the select/insert/update/delete surface shared by every backend.
// dest arguments are pointers to JSON-tagged structs (single row) or slices
// of them (Select); a nil dest discards the returned row.
type Store interface {
	Select(ctx context.Context, table string, q *Query, dest any) error
	Count(ctx context.Context, table string, q *Query) (int, error)
	Insert(ctx context.Context, table string, row, dest any) error
	Upsert(ctx context.Context, table string, row, dest any) error
	Update(ctx context.Context, table string, id any, patch, dest any) error
	Delete(ctx context.Context, table string, id any) error
	Ping(ctx context.Context) error
}

// Error is returned for every failed remote call.
type Error struct {
	Op      string
	Table   string
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: %s (status %d)", e.Op, e.Table, msg, e.Status)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Table, msg)
}

func (e *Error) Unwrap() error { return e.Err }
