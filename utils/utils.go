package utils

import (
	"crypto/md5"
	"sort"
	"strings"

	"github.com/gofrs/uuid"
)

// GenUuidFromStrings derives a stable uuid from its inputs, independent of
// their order.
func GenUuidFromStrings(parts ...string) string {
	if len(parts) == 0 {
		parts = append(parts, uuid.Nil.String())
	}

	sorted := make([]string, len(parts))
	copy(sorted, parts)
	sort.Strings(sorted)

	return uuidHash([]byte(strings.Join(sorted, "")))
}

func uuidHash(b []byte) string {
	h := md5.New()

	h.Write(b)
	sum := h.Sum(nil)
	sum[6] = (sum[6] & 0x0f) | 0x30
	sum[8] = (sum[8] & 0x3f) | 0x80
	return uuid.FromBytesOrNil(sum).String()
}
