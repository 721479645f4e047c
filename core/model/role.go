package model

// Role is the dispatch role of a server process.
type Role int

const (
	RoleStandby Role = iota
	RolePrimary
)

func (r Role) String() string {
	switch r {
	case RolePrimary:
		return "primary"
	case RoleStandby:
		return "standby"
	default:
		return "unknown"
	}
}
