package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/casa-storefront/internal/model"
	"github.com/flicky/casa-storefront/internal/rowstore/rowstoretest"
)

func seedCatalog(store *rowstoretest.Store) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, p := range []model.Product{
		{Name: "Oak Chair", Category: "chairs", Price: decimal.NewFromInt(120), InStock: true, IsActive: true},
		{Name: "Rattan Chair", Category: "chairs", Price: decimal.NewFromInt(180), InStock: false, IsActive: true},
		{Name: "Walnut Table", Category: "tables", Price: decimal.NewFromInt(450), InStock: true, IsActive: true},
		{Name: "Arc Lamp", Category: "lamps", Price: decimal.NewFromInt(90), InStock: true, IsActive: false},
	} {
		p.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		store.Seed(model.TableProducts, p)
	}
}

func names(products []model.Product) []string {
	out := make([]string, 0, len(products))
	for _, p := range products {
		out = append(out, p.Name)
	}
	return out
}

func TestCatalogService_Featured(t *testing.T) {
	store := rowstoretest.New()
	seedCatalog(store)

	featured, err := NewCatalogService(store, 6).Featured(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Oak Chair", "Walnut Table"}, names(featured))

	limited, err := NewCatalogService(store, 1).Featured(context.Background())
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestCatalogService_List(t *testing.T) {
	store := rowstoretest.New()
	seedCatalog(store)
	svc := NewCatalogService(store, 6)
	ctx := context.Background()

	tests := []struct {
		name string
		req  ListProducts
		want []string
	}{
		{"all active newest first", ListProducts{}, []string{"Walnut Table", "Rattan Chair", "Oak Chair"}},
		{"by category", ListProducts{Category: "chairs"}, []string{"Rattan Chair", "Oak Chair"}},
		{"search", ListProducts{Search: "oak"}, []string{"Oak Chair"}},
		{"inactive hidden", ListProducts{Category: "lamps"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.List(ctx, tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(got))
		})
	}
}

func TestCatalogService_Get(t *testing.T) {
	store := rowstoretest.New()
	id := seedProduct(t, store, "Oak Chair", "120")
	svc := NewCatalogService(store, 6)

	p, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Oak Chair", p.Name)

	_, err = svc.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestCatalogService_Categories(t *testing.T) {
	svc := NewCatalogService(rowstoretest.New(), 6)
	cats := svc.Categories(context.Background())
	require.Len(t, cats, 4)
	assert.Equal(t, "chairs", cats[0].ID)

	cats[0].Name = "changed"
	assert.Equal(t, "Chairs", svc.Categories(context.Background())[0].Name)
}
