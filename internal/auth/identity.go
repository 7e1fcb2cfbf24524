// Package auth supplies the acting identity for registry and execution
// operations. It resolves system accounts via os/user; it does not enforce
// visibility by itself — callers check CanView where the API requires it.
package auth

import (
	"fmt"
	"os/user"
	"strconv"
)

// Identity is a resolved system account.
type Identity struct {
	Username string `json:"username"`
	UID      int    `json:"uid"`
	GID      int    `json:"gid"`
}

// Root reports whether the identity is the superuser.
func (i Identity) Root() bool { return i.UID == 0 }

// CanView reports whether the identity may see resources owned by ownerUID.
// Root sees everything; everyone else sees only their own.
func (i Identity) CanView(ownerUID int) bool {
	return i.Root() || i.UID == ownerUID
}

// Current returns the identity of the calling process.
func Current() (Identity, error) {
	u, err := user.Current()
	if err != nil {
		return Identity{}, fmt.Errorf("resolve current user: %w", err)
	}
	return fromUser(u)
}

// Lookup resolves a username to an identity.
func Lookup(username string) (Identity, error) {
	u, err := user.Lookup(username)
	if err != nil {
		return Identity{}, fmt.Errorf("lookup user %q: %w", username, err)
	}
	return fromUser(u)
}

// LookupUID resolves a numeric uid to an identity.
func LookupUID(uid int) (Identity, error) {
	u, err := user.LookupId(strconv.Itoa(uid))
	if err != nil {
		return Identity{}, fmt.Errorf("lookup uid %d: %w", uid, err)
	}
	return fromUser(u)
}

func fromUser(u *user.User) (Identity, error) {
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return Identity{}, fmt.Errorf("parse uid %q: %w", u.Uid, err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return Identity{}, fmt.Errorf("parse gid %q: %w", u.Gid, err)
	}
	return Identity{Username: u.Username, UID: uid, GID: gid}, nil
}
