//go:build race

package local

import "golang.org/x/crypto/bcrypt"

func passwordHashCost() int {
	// race builds are slow enough already
	return bcrypt.DefaultCost
}
