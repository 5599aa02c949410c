// Package linkid generates the short public tokens letters are shared by.
package linkid

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// Alphabet leaves out 0, o, O, 1, l and I.
const Alphabet = "23456789abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ"

// Length gives 56^10 (about 3e17) combinations.
const Length = 10

// largest multiple of len(Alphabet) that fits in a byte
var limit = byte(256 - 256%len(Alphabet))

// Generate returns a new random link id.
func Generate() (string, error) {
	out := make([]byte, 0, Length)
	buf := make([]byte, Length*2)
	for len(out) < Length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("linkid: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, Alphabet[int(b)%len(Alphabet)])
			if len(out) == Length {
				break
			}
		}
	}
	return string(out), nil
}

// Valid reports whether s could have been produced by Generate.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !strings.ContainsRune(Alphabet, rune(s[i])) {
			return false
		}
	}
	return true
}
