// Package checksum fingerprints note content so unchanged vaults can skip a
// resolution run.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Vault folds per-note checksums into one digest. The result does not depend
// on map iteration order.
func Vault(sums map[string]string) string {
	paths := make([]string, 0, len(sums))
	for p := range sums {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var b strings.Builder
	for _, p := range paths {
		b.WriteString(p)
		b.WriteByte(0)
		b.WriteString(sums[p])
		b.WriteByte('\n')
	}
	return Sum([]byte(b.String()))
}
