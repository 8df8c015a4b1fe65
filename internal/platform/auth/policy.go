package auth

// Role and status values shared across the API.
const (
	RoleUser       = "USER"
	RoleLibrarian  = "LIBRARIAN"
	RoleAdmin      = "ADMIN"
	RoleSuperAdmin = "SUPER_ADMIN"
)

// roleRank orders roles for hierarchy checks. Unknown roles rank below
// everything so a garbage claim can never manage anyone.
var roleRank = map[string]int{
	RoleUser:       1,
	RoleLibrarian:  2,
	RoleAdmin:      3,
	RoleSuperAdmin: 4,
}

func Rank(role string) int { return roleRank[role] }

func ValidRole(role string) bool {
	_, ok := roleRank[role]
	return ok
}

// IsStaff reports whether the role may view and manage records owned
// by other users.
func IsStaff(role string) bool { return Rank(role) >= roleRank[RoleLibrarian] }

// CanViewUser: USER sees only their own records, staff see any.
func CanViewUser(actor Actor, ownerID string) bool {
	if actor.UserID == ownerID {
		return true
	}
	return IsStaff(actor.Role)
}

// CanManageUser is the single hierarchy rule for account mutations
// (status changes, role changes, deletion): the actor must be ADMIN or
// above and strictly outrank the target. An ADMIN therefore cannot
// touch another ADMIN or a SUPER_ADMIN.
func CanManageUser(actorRole, targetRole string) bool {
	if Rank(actorRole) < roleRank[RoleAdmin] {
		return false
	}
	return Rank(actorRole) > Rank(targetRole)
}

// CanAssignRole additionally requires the actor to outrank the role
// being granted, so an ADMIN cannot mint new ADMINs.
func CanAssignRole(actorRole, targetRole, newRole string) bool {
	if !CanManageUser(actorRole, targetRole) {
		return false
	}
	return Rank(actorRole) > Rank(newRole)
}
