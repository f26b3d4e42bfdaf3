package snapshot

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	"github.com/driftlake-labs/driftlake/pkg/core"
)

// isOpen reports whether a dbt_valid_to value marks the row as current.
// NULL is always open; when a sentinel is configured, the sentinel instant
// is open too. Closed rows never carry the sentinel, so there is no
// ambiguity in either representation.
func isOpen(validTo, sentinel core.Value) bool {
	if validTo.IsNull() {
		return true
	}
	if sentinel.IsNull() {
		return false
	}
	eq, err := core.Equal(validTo, sentinel)
	return err == nil && eq
}

// isTombstone reports whether a history row is a deletion marker.
func isTombstone(row core.Row, isDeletedCol string) bool {
	if isDeletedCol == "" {
		return false
	}
	v, ok := row[isDeletedCol]
	return ok && v.Kind() == core.KindText && strings.EqualFold(v.Text(), DeletedTrue)
}

// scdID computes the surrogate row version id: an md5 over the key values
// and the row's valid_from, pipe-separated. Stable across runs for the
// same key and version.
func scdID(row core.Row, keyCols []string, validFrom core.Value) string {
	var b strings.Builder
	for _, col := range keyCols {
		b.WriteString(row[col].String())
		b.WriteByte('|')
	}
	b.WriteString(validFrom.String())
	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
