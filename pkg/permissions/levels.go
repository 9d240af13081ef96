package permissions

import "context"

// rank maps each level to its position in the total order
// none < own < group < all. Unrecognized levels rank below none.
func rank(l Level) int {
	switch l {
	case LevelNone:
		return 0
	case LevelOwn:
		return 1
	case LevelGroup:
		return 2
	case LevelAll:
		return 3
	}
	return -1
}

// Dominant returns whichever of a and b grants broader access. It is
// commutative and idempotent, and LevelAll absorbs everything.
func Dominant(a, b Level) Level {
	if rank(a) >= rank(b) {
		return a
	}
	return b
}

// GroupMembershipResolver decides whether two users share a group.
// LevelGroup grants are meant to extend LevelOwn to group co-members;
// until a resolver is wired in they behave exactly like LevelOwn.
type GroupMembershipResolver interface {
	SharesGroup(ctx context.Context, userID, ownerID int64) (bool, error)
}

// hasRequiredAccess is the sufficiency test for a single grant: given the
// recorded level and whether the caller owns the resource, does the grant
// allow the operation?
func hasRequiredAccess(level Level, isOwner bool) bool {
	switch level {
	case LevelAll:
		return true
	case LevelOwn, LevelGroup:
		return isOwner
	}
	return false
}
