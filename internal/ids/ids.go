package ids

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

var (
	reInvalid = regexp.MustCompile(`[^a-z0-9-]+`)
	reDashes  = regexp.MustCompile(`-+`)
)

// SanitizeComponent normalizes a test identifier for use in file names.
// Strict and stable: lower + [a-z0-9-], collapse dashes.
func SanitizeComponent(s string) string {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.ReplaceAll(v, "_", "-")
	v = reInvalid.ReplaceAllString(v, "-")
	v = reDashes.ReplaceAllString(v, "-")
	v = strings.Trim(v, "-")
	return v
}

// OrderKey derives the stable drain-ordering key for one (testId, cycle).
// Hash-based so end-of-run archiving order is reproducible but not
// alphabetically biased: the first N names in sort order do not always win
// the budget.
func OrderKey(testID string, cycle int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s\x1f%d", testID, cycle)))
	return hex.EncodeToString(sum[:])
}
