package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// GenerateReference returns "<prefix>-<unix millis>-<000..999>", the format
// used for order, purchase order and return numbers.
func GenerateReference(prefix string, now time.Time) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d-%03d", prefix, now.UnixMilli(), n.Int64()), nil
}
