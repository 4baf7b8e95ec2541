package pkg

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"time"
)

const roomIDSuffixSpace = 36 * 36

// GenerateRoomID returns a short shareable room id: the current time in
// base36 plus a two-character random suffix to separate rooms created in
// the same millisecond.
func GenerateRoomID() (string, error) {
	suffix, err := rand.Int(rand.Reader, big.NewInt(roomIDSuffixSpace))
	if err != nil {
		return "", fmt.Errorf("failed to generate room id suffix: %w", err)
	}

	return strconv.FormatInt(time.Now().UnixMilli(), 36) + suffix.Text(36), nil
}