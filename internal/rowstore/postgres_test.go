package rowstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSelect(t *testing.T) {
	sql, args := buildSelect("products", NewQuery().
		Eq("is_active", true).
		Lt("stock_quantity", 10).
		ILike("name", "oak").
		Order("created_at", false).
		Limit(6))

	assert.Equal(t,
		`SELECT row_to_json(t) FROM (SELECT * FROM "products" WHERE "is_active"::text = $1::text`+
			` AND "stock_quantity" < ($2::text)::numeric AND "name" ILIKE '%' || $3::text || '%'`+
			` ORDER BY "created_at" DESC LIMIT 6) t`,
		sql)
	assert.Equal(t, []any{"true", "10", "oak"}, args)
}

func TestBuildSelect_ColumnsAndIn(t *testing.T) {
	sql, args := buildSelect("orders", NewQuery().Columns("id, total_amount").In("status", "pending", "paid"))
	assert.Equal(t,
		`SELECT row_to_json(t) FROM (SELECT "id", "total_amount" FROM "orders" WHERE "status"::text = ANY($1::text[])) t`,
		sql)
	assert.Equal(t, []any{[]string{"pending", "paid"}}, args)
}

func TestBuildWhere_QuotesHostileColumn(t *testing.T) {
	where, _ := buildWhere(NewQuery().Eq(`id"; DROP TABLE products; --`, 1), 1)
	assert.Contains(t, where, `"id""; DROP TABLE products; --"`)
}

func TestColumnsOf(t *testing.T) {
	payload, cols, err := columnsOf(map[string]any{"quantity": 2, "product_id": "p"})
	require.NoError(t, err)
	assert.Equal(t, []string{"product_id", "quantity"}, cols)
	assert.JSONEq(t, `{"quantity":2,"product_id":"p"}`, string(payload))

	_, _, err = columnsOf(map[string]any{})
	assert.Error(t, err)
	_, _, err = columnsOf([]int{1})
	assert.Error(t, err)
}

func TestPostgresStore_UnknownTable(t *testing.T) {
	s := NewPostgresStore(nil, "products")
	var rows []testRow
	err := s.Select(context.Background(), "pg_shadow", nil, &rows)
	var rsErr *Error
	require.ErrorAs(t, err, &rsErr)
	assert.Equal(t, "unknown table", rsErr.Message)
}
