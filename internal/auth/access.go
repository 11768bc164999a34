package auth

// CanModify reports whether the caller may mutate a resource owned by ownerID.
// Owners and admins are allowed; everyone else is denied. Both update and
// delete paths go through this single predicate.
func CanModify(caller Identity, ownerID string) bool {
	if caller.UserID == "" {
		return false
	}
	if caller.IsAdmin() {
		return true
	}
	return caller.UserID == ownerID
}
