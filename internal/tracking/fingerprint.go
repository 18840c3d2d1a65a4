package tracking

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"
)

// Fingerprint identifies a Reading for deduplication.
type Fingerprint string

const fingerprintSep = "|"

// FingerprintOf returns the 128-bit xxh3 digest of the reading's canonical form.
// Floats use the shortest representation that round-trips, so identical
// field values always produce identical fingerprints across processes.
func FingerprintOf(r Reading) Fingerprint {
	var b strings.Builder
	b.WriteString(strconv.FormatFloat(r.Latitude, 'f', -1, 64))
	b.WriteString(fingerprintSep)
	b.WriteString(strconv.FormatFloat(r.Longitude, 'f', -1, 64))
	b.WriteString(fingerprintSep)
	b.WriteString(r.Timestamp)

	sum := xxh3.HashString128(b.String()).Bytes()
	return Fingerprint(hex.EncodeToString(sum[:]))
}
