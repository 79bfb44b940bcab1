// Package checksum computes the digests used for package integrity and
// feed cache validation.
package checksum

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// Strong returns the hex SHA-256 of b. It is the content checksum clients
// verify downloaded archives against.
func Strong(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// StrongBase64 returns the base64 SHA-256 of b, as carried by Digest and
// Repr-Digest headers.
func StrongBase64(b []byte) string {
	sum := sha256.Sum256(b)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Weak returns the hex MD5 of b. It identifies a rendered feed document and
// is only used for cache validation.
func Weak(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}
