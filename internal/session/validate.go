// Package session lays out the per-user state directory and resolves which
// user a command acts for.
package session

import (
	"fmt"
	"regexp"
)

var nameRegexp = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateName checks that a user id is safe to use as a directory name.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid user id %q: must match %s", name, nameRegexp)
	}
	return nil
}
