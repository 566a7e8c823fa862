package identity

// Authorize allows p to act on a resource owned by ownerID iff p owns it or p is an admin.
// It is pure: no I/O, no clock.
func Authorize(p Principal, ownerID int64) error {
	if p.IsAdmin() {
		return nil
	}
	if p.ID > 0 && p.ID == ownerID {
		return nil
	}
	return OpError{Op: "identity.Authorize", Kind: ErrForbidden}
}
