// Package roomname generates memorable room names such as
// "sleepy-otter-crayon".
package roomname

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// Generate returns a random mood-critter-supply name.
func Generate() string {
	parts := make([]string, 0, 3)
	for _, list := range [][]string{moods, critters, supplies} {
		parts = append(parts, list[randomIndex(len(list))])
	}
	return strings.Join(parts, "-")
}

// randomIndex returns a cryptographically secure random index for a slice of given length.
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		// crypto/rand never fails on supported platforms.
		panic("roomname: random source failed: " + err.Error())
	}
	return int(n.Int64())
}
