package model

const RoleSuperAdmin = "super_admin"

const (
	PermProductsRead    = "products:read"
	PermProductsWrite   = "products:write"
	PermOrdersRead      = "orders:read"
	PermOrdersWrite     = "orders:write"
	PermUsersRead       = "users:read"
	PermUsersWrite      = "users:write"
	PermCategoriesRead  = "categories:read"
	PermCategoriesWrite = "categories:write"
)

// AllPermissions is what the bootstrap super admin is granted.
var AllPermissions = []string{
	PermProductsRead, PermProductsWrite,
	PermOrdersRead, PermOrdersWrite,
	PermUsersRead, PermUsersWrite,
	PermCategoriesRead, PermCategoriesWrite,
}

// Capabilities is the derived authorization of one user. The zero value
// grants nothing.
type Capabilities struct {
	Role        string
	Permissions map[string]struct{}
}

func NewCapabilities(admin *AdminUser) Capabilities {
	if admin == nil || !admin.IsActive {
		return Capabilities{}
	}
	perms := make(map[string]struct{}, len(admin.Permissions))
	for _, p := range admin.Permissions {
		perms[p] = struct{}{}
	}
	return Capabilities{Role: admin.Role, Permissions: perms}
}

func (c Capabilities) IsAdmin() bool {
	return c.Role != ""
}

func (c Capabilities) Has(perm string) bool {
	if c.Role == RoleSuperAdmin {
		return true
	}
	_, ok := c.Permissions[perm]
	return ok
}
