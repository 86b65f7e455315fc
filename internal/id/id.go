package id

import (
	"crypto/rand"
	"encoding/hex"
)

// New returns a random identifier with a type prefix, e.g. img_3f2a…
// for images, sess_… for sessions and exp_… for exports.
func New(prefix string) string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return prefix + "_fallback-id"
	}
	return prefix + "_" + hex.EncodeToString(b[:])
}
