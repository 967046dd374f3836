package models

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleDispatcher Role = "dispatcher"
	RoleDriver     Role = "driver"
	RoleVendor     Role = "vendor"
	RolePassenger  Role = "passenger"
)

// Actor identifies who is performing an operation. The emergency
// override path in dispatch requires an elevated actor.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

func (a Actor) Elevated() bool {
	return a.Role == RoleAdmin
}
