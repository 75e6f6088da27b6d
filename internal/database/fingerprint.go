package database

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint derives the de-duplication key of a listed bulletin from its
// title and detail URL. It does not look at document content: a bulletin
// republished under the same title and URL is never detected again.
func Fingerprint(title, url string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(title) + strings.TrimSpace(url)))
	return hex.EncodeToString(sum[:])
}

// DeliveryKey derives the primary key of a delivery record.
func DeliveryKey(fingerprint, channel string) string {
	sum := sha256.Sum256([]byte(fingerprint + "-" + channel))
	return hex.EncodeToString(sum[:])
}
