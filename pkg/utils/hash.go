package utils

import (
	"crypto/md5"
	"fmt"
	"strings"
)

// QuestionHash produces a stable cache key for a user question.
// Case and surrounding whitespace are ignored so trivially re-phrased
// submissions hit the same cache entry.
func QuestionHash(question string) string {
	normalized := strings.ToLower(strings.TrimSpace(question))
	hash := md5.Sum([]byte(normalized))
	return fmt.Sprintf("%x", hash)
}
