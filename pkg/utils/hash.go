package utils

import (
	"crypto/md5"
	"fmt"
	"strings"
)

// ContentID derives a stable identifier from the given parts, used as the
// primary key of indexed ledger rows so re-indexing overwrites instead of
// duplicating.
func ContentID(parts ...string) string {
	hash := md5.Sum([]byte(strings.Join(parts, "\x1f")))
	return fmt.Sprintf("%x", hash)
}
