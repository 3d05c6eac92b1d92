package rowstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore serves the same table API straight from PostgreSQL, for
// self-hosted deployments. Rows travel as row_to_json output so callers
// decode them exactly like REST responses.
type PostgresStore struct {
	pool   *pgxpool.Pool
	tables map[string]bool
}

func NewPostgresStore(pool *pgxpool.Pool, tables ...string) *PostgresStore {
	allowed := make(map[string]bool, len(tables))
	for _, t := range tables {
		allowed[t] = true
	}
	return &PostgresStore{pool: pool, tables: allowed}
}

func (s *PostgresStore) Select(ctx context.Context, table string, q *Query, dest any) error {
	if err := s.checkTable("select", table); err != nil {
		return err
	}
	sql, args := buildSelect(table, q)
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return &Error{Op: "select", Table: table, Err: err}
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return &Error{Op: "select", Table: table, Message: "scan row", Err: err}
		}
		out = append(out, raw)
	}
	if err := rows.Err(); err != nil {
		return &Error{Op: "select", Table: table, Err: err}
	}
	if out == nil {
		out = []json.RawMessage{}
	}

	buf, err := json.Marshal(out)
	if err != nil {
		return &Error{Op: "select", Table: table, Message: "encode rows", Err: err}
	}
	if err := json.Unmarshal(buf, dest); err != nil {
		return &Error{Op: "select", Table: table, Message: "decode rows", Err: err}
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context, table string, q *Query) (int, error) {
	if err := s.checkTable("count", table); err != nil {
		return 0, err
	}
	where, args := buildWhere(q, 1)
	sql := fmt.Sprintf(`SELECT count(*) FROM %s%s`, ident(table), where)

	var n int
	if err := s.pool.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, &Error{Op: "count", Table: table, Err: err}
	}
	return n, nil
}

func (s *PostgresStore) Insert(ctx context.Context, table string, row, dest any) error {
	return s.insert(ctx, "insert", table, row, dest, false)
}

func (s *PostgresStore) Upsert(ctx context.Context, table string, row, dest any) error {
	return s.insert(ctx, "upsert", table, row, dest, true)
}

func (s *PostgresStore) insert(ctx context.Context, op, table string, row, dest any, upsert bool) error {
	if err := s.checkTable(op, table); err != nil {
		return err
	}
	payload, cols, err := columnsOf(row)
	if err != nil {
		return &Error{Op: op, Table: table, Message: "encode row", Err: err}
	}

	quoted := quoteAll(cols)
	sql := fmt.Sprintf(
		`INSERT INTO %[1]s AS r (%[2]s) SELECT %[2]s FROM json_populate_record(NULL::%[1]s, $1::json)`,
		ident(table), strings.Join(quoted, ", "),
	)
	if upsert {
		var sets []string
		for _, c := range quoted {
			if c != `"id"` {
				sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
			}
		}
		if len(sets) == 0 {
			sets = []string{`"id" = EXCLUDED."id"`}
		}
		sql += ` ON CONFLICT ("id") DO UPDATE SET ` + strings.Join(sets, ", ")
	}
	sql += ` RETURNING row_to_json(r.*)`

	return s.returning(ctx, op, table, sql, dest, string(payload))
}

func (s *PostgresStore) Update(ctx context.Context, table string, id, patch, dest any) error {
	if err := s.checkTable("update", table); err != nil {
		return err
	}
	payload, cols, err := columnsOf(patch)
	if err != nil {
		return &Error{Op: "update", Table: table, Message: "encode patch", Err: err}
	}

	sets := make([]string, 0, len(cols))
	for _, c := range quoteAll(cols) {
		sets = append(sets, fmt.Sprintf("%s = p.%s", c, c))
	}
	sql := fmt.Sprintf(
		`UPDATE %[1]s AS r SET %[2]s FROM json_populate_record(NULL::%[1]s, $1::json) AS p
		 WHERE r."id"::text = $2::text RETURNING row_to_json(r.*)`,
		ident(table), strings.Join(sets, ", "),
	)
	return s.returning(ctx, "update", table, sql, dest, string(payload), fmt.Sprint(id))
}

func (s *PostgresStore) Delete(ctx context.Context, table string, id any) error {
	if err := s.checkTable("delete", table); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE "id"::text = $1::text`, ident(table)), fmt.Sprint(id))
	if err != nil {
		return &Error{Op: "delete", Table: table, Err: err}
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return &Error{Op: "ping", Err: err}
	}
	return nil
}

func (s *PostgresStore) returning(ctx context.Context, op, table, sql string, dest any, args ...any) error {
	var raw []byte
	if err := s.pool.QueryRow(ctx, sql, args...).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &Error{Op: op, Table: table, Message: "no row returned", Err: ErrNotFound}
		}
		return &Error{Op: op, Table: table, Err: err}
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return &Error{Op: op, Table: table, Message: "decode row", Err: err}
	}
	return nil
}

func (s *PostgresStore) checkTable(op, table string) error {
	if !s.tables[table] {
		return &Error{Op: op, Table: table, Message: "unknown table"}
	}
	return nil
}

func buildSelect(table string, q *Query) (string, []any) {
	cols := "*"
	if q != nil && q.columns != "" && q.columns != "*" {
		parts := strings.Split(q.columns, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cols = strings.Join(quoteAll(parts), ", ")
	}

	where, args := buildWhere(q, 1)
	var b strings.Builder
	fmt.Fprintf(&b, `SELECT row_to_json(t) FROM (SELECT %s FROM %s%s`, cols, ident(table), where)
	if q != nil && len(q.order) > 0 {
		parts := make([]string, 0, len(q.order))
		for _, o := range q.order {
			dir := "DESC"
			if o.Ascending {
				dir = "ASC"
			}
			parts = append(parts, ident(o.Column)+" "+dir)
		}
		b.WriteString(" ORDER BY " + strings.Join(parts, ", "))
	}
	if q != nil && q.limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.limit)
	}
	b.WriteString(") t")
	return b.String(), args
}

// buildWhere renders filters with text parameters; ordering comparisons
// are numeric.
func buildWhere(q *Query, next int) (string, []any) {
	filters := q.Filters()
	if len(filters) == 0 {
		return "", nil
	}
	conds := make([]string, 0, len(filters))
	args := make([]any, 0, len(filters))
	for _, f := range filters {
		col := ident(f.Column)
		ph := fmt.Sprintf("$%d", next)
		switch f.Op {
		case OpEq:
			conds = append(conds, fmt.Sprintf("%s::text = %s::text", col, ph))
		case OpNeq:
			conds = append(conds, fmt.Sprintf("%s::text <> %s::text", col, ph))
		case OpLt, OpLte, OpGt, OpGte:
			conds = append(conds, fmt.Sprintf("%s %s (%s::text)::numeric", col, sqlOperator(f.Op), ph))
		case OpIn:
			conds = append(conds, fmt.Sprintf("%s::text = ANY(%s::text[])", col, ph))
		case OpILike:
			conds = append(conds, fmt.Sprintf("%s ILIKE '%%' || %s::text || '%%'", col, ph))
		}
		if f.Op == OpIn {
			vals, _ := f.Value.([]any)
			strs := make([]string, 0, len(vals))
			for _, v := range vals {
				strs = append(strs, fmt.Sprint(v))
			}
			args = append(args, strs)
		} else {
			args = append(args, fmt.Sprint(f.Value))
		}
		next++
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func sqlOperator(op Operator) string {
	switch op {
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	case OpGt:
		return ">"
	default:
		return ">="
	}
}

// columnsOf marshals v and returns the JSON payload with its sorted keys.
func columnsOf(v any) ([]byte, []string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, nil, fmt.Errorf("row must encode as an object: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil, errors.New("row has no columns")
	}
	cols := make([]string, 0, len(fields))
	for k := range fields {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return payload, cols, nil
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func quoteAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = ident(n)
	}
	return out
}
