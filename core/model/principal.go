package model

// Role is the authorization role carried by a principal.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleDriver    Role = "driver"
	RolePassenger Role = "passenger"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDriver, RolePassenger:
		return true
	}
	return false
}

// Principal is the authenticated caller of an engine operation. For drivers
// the ID is the driver id, for passengers the passenger id.
type Principal struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// System is the principal used for bootstrap and operator tooling.
var System = Principal{ID: "system", Role: RoleAdmin}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// IsDriver reports whether p is the driver identified by driverID.
func (p Principal) IsDriver(driverID string) bool {
	return p.Role == RoleDriver && p.ID == driverID
}

// IsPassenger reports whether p is the passenger identified by passengerID.
func (p Principal) IsPassenger(passengerID string) bool {
	return p.Role == RolePassenger && p.ID == passengerID
}
