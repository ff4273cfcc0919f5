package rbac

const (
	RoleEmployee = "employee"
	RoleAdmin    = "admin"
)

// RolePermissions is the kiosk's default policy.
var RolePermissions = map[string][]string{
	RoleEmployee: {
		"catalog:view",
		"video:watch",
		"test:take",
		"attempt:view-own",
		"dashboard:view-own",
	},
	RoleAdmin: {
		"*", // everything
	},
}
