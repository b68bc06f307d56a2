package sqlstore

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/getpup/commitstore/store"
)

// maxStreamIDLength is the width of the indexed stream-id column. Every
// hasher output must fit it.
const maxStreamIDLength = 40

// SHA1StreamIDHasher is the default stream-id hasher: the uppercase hex
// SHA-1 of the raw id, always exactly 40 characters. SHA-1 is used as a
// fixed-width key derivation, not for any security property.
type SHA1StreamIDHasher struct{}

// Hash implements store.StreamIDHasher.
func (SHA1StreamIDHasher) Hash(streamID string) string {
	sum := sha1.Sum([]byte(streamID))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// validatedHasher guards a user-supplied hasher: blank input, blank output
// and over-width output are rejected before any SQL is built.
type validatedHasher struct {
	inner store.StreamIDHasher
}

func (h validatedHasher) hash(streamID string) (string, error) {
	if strings.TrimSpace(streamID) == "" {
		return "", fmt.Errorf("%w: stream id is blank", store.ErrInvalidArgument)
	}
	hashed := h.inner.Hash(streamID)
	if strings.TrimSpace(hashed) == "" {
		return "", fmt.Errorf("%w: hasher returned a blank stream id", store.ErrInvalidArgument)
	}
	if len(hashed) > maxStreamIDLength {
		return "", fmt.Errorf("%w: hashed stream id is %d characters, the maximum is %d",
			store.ErrInvalidArgument, len(hashed), maxStreamIDLength)
	}
	return hashed, nil
}
