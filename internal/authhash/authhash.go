// Copyright (c) 2026 wukong authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package authhash computes the hex digest of the shared auth secret
// exchanged during the AUTH_KEY handshake (§4.5, §6).
//
// A single hash primitive has no natural third-party substitute here: every
// retrieved repo that hashes data for identity (rather than for a
// non-cryptographic checksum, where e.g. OneOfOne/xxhash shows up) reaches
// for crypto/..., so crypto/sha256 is used directly rather than adding a
// dependency for one function call.
package authhash

import (
	"crypto/sha256"
	"encoding/hex"
)

// Digest returns the hex-encoded SHA-256 digest of secret.
func Digest(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
