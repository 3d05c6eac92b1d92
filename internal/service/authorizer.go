package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/flicky/casa-storefront/internal/model"
	"github.com/flicky/casa-storefront/internal/rowstore"
)

// Authorizer derives a user's capabilities from the admin membership table.
// It is called at the point of use and never caches.
type Authorizer struct {
	store rowstore.Store
}

func NewAuthorizer(store rowstore.Store) *Authorizer {
	return &Authorizer{store: store}
}

func (a *Authorizer) Capabilities(ctx context.Context, userID uuid.UUID) (model.Capabilities, error) {
	var rows []model.AdminUser
	q := rowstore.NewQuery().Eq("id", userID).Eq("is_active", true).Limit(1)
	if err := a.store.Select(ctx, model.TableAdminUsers, q, &rows); err != nil {
		return model.Capabilities{}, fmt.Errorf("lookup admin membership: %w", err)
	}
	if len(rows) == 0 {
		return model.Capabilities{}, nil
	}
	return model.NewCapabilities(&rows[0]), nil
}

// Require returns ErrForbidden unless the user holds perm.
func (a *Authorizer) Require(ctx context.Context, userID uuid.UUID, perm string) error {
	caps, err := a.Capabilities(ctx, userID)
	if err != nil {
		return err
	}
	if !caps.Has(perm) {
		return ErrForbidden
	}
	return nil
}
