package rowstore

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

type Operator string

const (
	OpEq    Operator = "eq"
	OpNeq   Operator = "neq"
	OpLt    Operator = "lt"
	OpLte   Operator = "lte"
	OpGt    Operator = "gt"
	OpGte   Operator = "gte"
	OpIn    Operator = "in"
	OpILike Operator = "ilike"
)

type Filter struct {
	Column string
	Op     Operator
	Value  any
}

type OrderBy struct {
	Column    string
	Ascending bool
}

// Query is a row filter plus ordering and paging. A nil *Query selects
// every row.
type Query struct {
	columns string
	filters []Filter
	order   []OrderBy
	limit   int
}

func NewQuery() *Query { return &Query{} }

func (q *Query) Columns(cols string) *Query { q.columns = cols; return q }

func (q *Query) Eq(col string, v any) *Query  { return q.where(col, OpEq, v) }
func (q *Query) Neq(col string, v any) *Query { return q.where(col, OpNeq, v) }
func (q *Query) Lt(col string, v any) *Query  { return q.where(col, OpLt, v) }
func (q *Query) Lte(col string, v any) *Query { return q.where(col, OpLte, v) }
func (q *Query) Gt(col string, v any) *Query  { return q.where(col, OpGt, v) }
func (q *Query) Gte(col string, v any) *Query { return q.where(col, OpGte, v) }

// In matches any of vals. vals must be a slice.
func (q *Query) In(col string, vals ...any) *Query { return q.where(col, OpIn, vals) }

// ILike is a case-insensitive substring match.
func (q *Query) ILike(col, substr string) *Query { return q.where(col, OpILike, substr) }

func (q *Query) Order(col string, ascending bool) *Query {
	q.order = append(q.order, OrderBy{Column: col, Ascending: ascending})
	return q
}

func (q *Query) Limit(n int) *Query { q.limit = n; return q }

func (q *Query) where(col string, op Operator, v any) *Query {
	q.filters = append(q.filters, Filter{Column: col, Op: op, Value: v})
	return q
}

func (q *Query) Filters() []Filter {
	if q == nil {
		return nil
	}
	return q.filters
}

// Values encodes q in PostgREST query-string form.
func (q *Query) Values() url.Values {
	v := url.Values{}
	if q == nil {
		v.Set("select", "*")
		return v
	}
	cols := q.columns
	if cols == "" {
		cols = "*"
	}
	v.Set("select", cols)
	for _, f := range q.filters {
		v.Add(f.Column, string(f.Op)+"."+encodeValue(f))
	}
	if len(q.order) > 0 {
		parts := make([]string, 0, len(q.order))
		for _, o := range q.order {
			dir := "desc"
			if o.Ascending {
				dir = "asc"
			}
			parts = append(parts, o.Column+"."+dir)
		}
		v.Set("order", strings.Join(parts, ","))
	}
	if q.limit > 0 {
		v.Set("limit", strconv.Itoa(q.limit))
	}
	return v
}

func encodeValue(f Filter) string {
	switch f.Op {
	case OpIn:
		vals, _ := f.Value.([]any)
		parts := make([]string, 0, len(vals))
		for _, v := range vals {
			parts = append(parts, quoteListItem(fmt.Sprint(v)))
		}
		return "(" + strings.Join(parts, ",") + ")"
	case OpILike:
		return "*" + fmt.Sprint(f.Value) + "*"
	default:
		return fmt.Sprint(f.Value)
	}
}

func quoteListItem(s string) string {
	if strings.ContainsAny(s, `,()"`) {
		return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
	}
	return s
}
