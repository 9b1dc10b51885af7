// Package idgen generates the random identifiers used for visits,
// alerts, webhooks, and delivered events.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

// randomBytes is the entropy per ID; 12 bytes encode to 24 hex chars,
// enough that collisions are not a practical concern at ingest volume.
const randomBytes = 12

// WithPrefix returns prefix + 24 random hex chars, e.g. WithPrefix("visit_")
// yields ids like "visit_9f2c41d08ab356e71d04c9aa".
func WithPrefix(prefix string) string {
	b := make([]byte, randomBytes)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand only fails when the platform entropy source is
		// broken; nothing sensible can continue past that.
		panic("crypto/rand failed: " + err.Error())
	}
	return prefix + hex.EncodeToString(b)
}
