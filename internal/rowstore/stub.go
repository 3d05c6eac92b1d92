package rowstore

import "context"

// Stub stands in when backend credentials are missing. Reads come back
// empty and every mutation fails with ErrNotConfigured.
type Stub struct{}

func (Stub) Select(context.Context, string, *Query, any) error { return nil }

func (Stub) Count(context.Context, string, *Query) (int, error) { return 0, nil }

func (Stub) Insert(_ context.Context, table string, _, _ any) error {
	return notConfigured("insert", table)
}

func (Stub) Upsert(_ context.Context, table string, _, _ any) error {
	return notConfigured("upsert", table)
}

func (Stub) Update(_ context.Context, table string, _, _, _ any) error {
	return notConfigured("update", table)
}

func (Stub) Delete(_ context.Context, table string, _ any) error {
	return notConfigured("delete", table)
}

func (Stub) Ping(context.Context) error { return notConfigured("ping", "") }

func notConfigured(op, table string) error {
	return &Error{Op: op, Table: table, Err: ErrNotConfigured}
}
