package auth

import (
	"errors"
	"fmt"
)

// ErrNotAuthorized carries the contract's exact text for a signer that is
// present but not on the resource's authorized-account list.
var ErrNotAuthorized = errors.New("Account is not authorized")

// MissingAuthorityError is returned when an action names an actor whose
// signature is not on the transaction. The text is part of the external
// contract.
type MissingAuthorityError struct {
	Actor string
}

func (e *MissingAuthorityError) Error() string {
	return fmt.Sprintf("missing required authority %s", e.Actor)
}

// RequireAuthority verifies that the transaction signer is the named actor.
func RequireAuthority(signer, actor string) error {
	if signer != actor {
		return &MissingAuthorityError{Actor: actor}
	}
	return nil
}

// IsMissingAuthority reports whether err is a missing-authority failure.
func IsMissingAuthority(err error) bool {
	var target *MissingAuthorityError
	return errors.As(err, &target)
}
