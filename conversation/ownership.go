package conversation

import "strings"

// groupNotFound names the group the way the caller spelled it.
func groupNotFound(name string) *Error {
	return ErrNotFound.Withf("group %q not found", strings.TrimSpace(name))
}

// findGroup re-reads the group by name inside tx and checks that it is still
// the one whose lock the caller holds.
func findGroup(tx Tx, nameKey, lockedID string) (*Group, error) {
	g, err := tx.GroupByName(nameKey)
	if err != nil {
		return nil, err
	}
	if g == nil || g.ID != lockedID {
		return nil, ErrNotFound
	}
	return g, nil
}

// findOwnedGroup is the guard in front of every owner-only operation.
func findOwnedGroup(tx Tx, nameKey, lockedID, userID string) (*Group, error) {
	g, err := findGroup(tx, nameKey, lockedID)
	if err != nil {
		return nil, err
	}
	if g.OwnerID != userID {
		return nil, ErrNotOwner
	}
	return g, nil
}
