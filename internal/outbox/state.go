package outbox

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"
)

// GenerateIdempotencyKey derives a stable key for one order intent within a
// cycle. Retries of the same cycle reuse the key, so the broker can reject a
// duplicate submission.
func GenerateIdempotencyKey(symbol string, side Side, qty int, cycleStart time.Time) string {
	data := fmt.Sprintf("%s-%s-%d-%d", strings.ToUpper(symbol), side, qty, cycleStart.UnixNano())
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash[:8])
}
