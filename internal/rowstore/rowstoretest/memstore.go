// Package rowstoretest provides an in-memory rowstore.Store for tests.
package rowstoretest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flicky/casa-storefront/internal/rowstore"
)

type Row = map[string]any

var zeroTime = time.Time{}.Format(time.RFC3339)

// Store is an in-memory rowstore.Store. Rows round-trip through JSON so
// callers decode them exactly as they would from a real backend.
type Store struct {
	mu     sync.Mutex
	tables map[string][]Row
	seq    int
	fail   map[string]error // keyed by "op table", e.g. "insert cart_items"
	calls  []string
}

func New() *Store {
	return &Store{tables: make(map[string][]Row), fail: make(map[string]error)}
}

// FailOn makes every op on table return err until reset with a nil err.
func (m *Store) FailOn(op, table string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[op+" "+table] = err
}

// Calls counts every call made so far.
func (m *Store) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *Store) Rows(table string) []Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Row, len(m.tables[table]))
	copy(out, m.tables[table])
	return out
}

// Seed inserts v as-is and returns its id.
func (m *Store) Seed(table string, v any) string {
	r := toRow(v)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fill(r)
	m.tables[table] = append(m.tables[table], r)
	return r["id"].(string)
}

func (m *Store) begin(op, table string) error {
	m.calls = append(m.calls, op+" "+table)
	if err := m.fail[op+" "+table]; err != nil {
		return &rowstore.Error{Op: op, Table: table, Message: err.Error(), Err: err}
	}
	return nil
}

func (m *Store) Select(_ context.Context, table string, q *rowstore.Query, dest any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("select", table); err != nil {
		return err
	}
	return decode(m.query(table, q), dest)
}

func (m *Store) Count(_ context.Context, table string, q *rowstore.Query) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("count", table); err != nil {
		return 0, err
	}
	return len(m.query(table, q)), nil
}

func (m *Store) Insert(_ context.Context, table string, v, dest any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("insert", table); err != nil {
		return err
	}
	r := toRow(v)
	m.fill(r)
	m.tables[table] = append(m.tables[table], r)
	return decode(r, dest)
}

func (m *Store) Upsert(_ context.Context, table string, v, dest any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("upsert", table); err != nil {
		return err
	}
	r := toRow(v)
	if i := m.index(table, fmt.Sprint(r["id"])); i >= 0 {
		for k, val := range r {
			m.tables[table][i][k] = val
		}
		return decode(m.tables[table][i], dest)
	}
	m.fill(r)
	m.tables[table] = append(m.tables[table], r)
	return decode(r, dest)
}

func (m *Store) Update(_ context.Context, table string, id, patch, dest any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("update", table); err != nil {
		return err
	}
	i := m.index(table, fmt.Sprint(id))
	if i < 0 {
		return &rowstore.Error{Op: "update", Table: table, Err: rowstore.ErrNotFound}
	}
	for k, val := range toRow(patch) {
		m.tables[table][i][k] = val
	}
	return decode(m.tables[table][i], dest)
}

func (m *Store) Delete(_ context.Context, table string, id any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("delete", table); err != nil {
		return err
	}
	i := m.index(table, fmt.Sprint(id))
	if i < 0 {
		return &rowstore.Error{Op: "delete", Table: table, Err: rowstore.ErrNotFound}
	}
	rows := m.tables[table]
	m.tables[table] = append(rows[:i:i], rows[i+1:]...)
	return nil
}

func (m *Store) Ping(context.Context) error { return nil }

func (m *Store) fill(r Row) {
	if _, ok := r["id"]; !ok || r["id"] == uuid.Nil.String() {
		r["id"] = uuid.NewString()
	}
	if ts, ok := r["created_at"]; !ok || ts == zeroTime {
		m.seq++
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		r["created_at"] = base.Add(time.Duration(m.seq) * time.Second).Format(time.RFC3339)
	}
}

func (m *Store) index(table, id string) int {
	for i, r := range m.tables[table] {
		if fmt.Sprint(r["id"]) == id {
			return i
		}
	}
	return -1
}

func (m *Store) query(table string, q *rowstore.Query) []Row {
	var out []Row
	for _, r := range m.tables[table] {
		if matches(r, q.Filters()) {
			out = append(out, r)
		}
	}
	if q == nil {
		return out
	}
	vals := q.Values()
	if order := vals.Get("order"); order != "" {
		col, desc := order, false
		if n := len(order); n > 5 && order[n-5:] == ".desc" {
			col, desc = order[:n-5], true
		} else if n > 4 && order[n-4:] == ".asc" {
			col = order[:n-4]
		}
		sort.SliceStable(out, func(i, j int) bool {
			a, b := fmt.Sprint(out[i][col]), fmt.Sprint(out[j][col])
			if desc {
				return a > b
			}
			return a < b
		})
	}
	if lim, err := strconv.Atoi(vals.Get("limit")); err == nil && lim < len(out) {
		out = out[:lim]
	}
	return out
}

func matches(r Row, filters []rowstore.Filter) bool {
	for _, f := range filters {
		got := fmt.Sprint(r[f.Column])
		switch f.Op {
		case rowstore.OpEq:
			if got != fmt.Sprint(f.Value) {
				return false
			}
		case rowstore.OpNeq:
			if got == fmt.Sprint(f.Value) {
				return false
			}
		case rowstore.OpIn:
			found := false
			for _, v := range f.Value.([]any) {
				if got == fmt.Sprint(v) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		case rowstore.OpILike:
			if !strings.Contains(strings.ToLower(got), strings.ToLower(fmt.Sprint(f.Value))) {
				return false
			}
		case rowstore.OpLt:
			a, _ := strconv.ParseFloat(got, 64)
			b, _ := strconv.ParseFloat(fmt.Sprint(f.Value), 64)
			if !(a < b) {
				return false
			}
		}
	}
	return true
}

func toRow(v any) Row {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	r := Row{}
	if err := json.Unmarshal(b, &r); err != nil {
		panic(err)
	}
	return r
}

func decode(v, dest any) error {
	if dest == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dest)
}
