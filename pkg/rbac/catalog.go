package rbac

// Catalog permission names
const (
	PermCustomersRead   = "customers:read"
	PermCustomersWrite  = "customers:write"
	PermCustomersDelete = "customers:delete"
	PermStaffRead       = "staff:read"
	PermStaffWrite      = "staff:write"
	PermStaffDelete     = "staff:delete"
	PermSettingsRead    = "settings:read"
	PermSettingsWrite   = "settings:write"
	PermBillingRead     = "billing:read"
	PermBillingWrite    = "billing:write"
	PermReportsRead     = "reports:read"
)

var catalog = []Permission{
	{Name: PermCustomersRead, Resource: ResourceCustomers, Action: ActionRead, Description: "View customer records"},
	{Name: PermCustomersWrite, Resource: ResourceCustomers, Action: ActionWrite, Description: "Create and edit customer records"},
	{Name: PermCustomersDelete, Resource: ResourceCustomers, Action: ActionDelete, Description: "Deactivate customer records"},
	{Name: PermStaffRead, Resource: ResourceStaff, Action: ActionRead, Description: "View staff accounts"},
	{Name: PermStaffWrite, Resource: ResourceStaff, Action: ActionWrite, Description: "Create and edit staff accounts"},
	{Name: PermStaffDelete, Resource: ResourceStaff, Action: ActionDelete, Description: "Deactivate staff accounts"},
	{Name: PermSettingsRead, Resource: ResourceSettings, Action: ActionRead, Description: "View restaurant settings"},
	{Name: PermSettingsWrite, Resource: ResourceSettings, Action: ActionWrite, Description: "Edit restaurant settings"},
	{Name: PermBillingRead, Resource: ResourceBilling, Action: ActionRead, Description: "View subscription and billing details"},
	{Name: PermBillingWrite, Resource: ResourceBilling, Action: ActionWrite, Description: "Change subscription and billing details"},
	{Name: PermReportsRead, Resource: ResourceReports, Action: ActionRead, Description: "View reports"},
}

var allPermissionNames = func() []string {
	names := make([]string, len(catalog))
	for i, p := range catalog {
		names[i] = p.Name
	}
	return names
}()

var roleMappings = map[Role][]string{
	RoleSuperAdmin:      allPermissionNames,
	RoleRestaurantOwner: allPermissionNames,
	RoleManager: {
		PermCustomersRead, PermCustomersWrite, PermCustomersDelete,
		PermStaffRead, PermStaffWrite,
		PermReportsRead,
	},
	RoleStaff: {
		PermCustomersRead,
		PermReportsRead,
	},
}

// Catalog returns a copy of the fixed permission catalog without ids
func Catalog() []Permission {
	out := make([]Permission, len(catalog))
	copy(out, catalog)
	return out
}

// DefaultPermissionNames returns the permission names mapped to role.
// Unknown roles map to nothing.
func DefaultPermissionNames(role Role) []string {
	names := roleMappings[role]
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// LookupPermission finds a catalog entry by resource and action
func LookupPermission(resource Resource, action Action) (Permission, bool) {
	name := PermissionName(resource, action)
	for _, p := range catalog {
		if p.Name == name {
			return p, true
		}
	}
	return Permission{}, false
}
