package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// fingerprintContentPrefix bounds how much of the content takes part in a fingerprint.
const fingerprintContentPrefix = 300

// Hash generates a SHA-256 hash of the input string
func Hash(input string) string {
	hasher := sha256.New()
	hasher.Write([]byte(input))
	return hex.EncodeToString(hasher.Sum(nil))
}

// Fingerprint derives the duplicate-suppression hash of an item from its
// normalized title and the leading part of its content. Only exact matches
// after normalization collide.
func Fingerprint(title, content string) string {
	runes := []rune(content)
	if len(runes) > fingerprintContentPrefix {
		runes = runes[:fingerprintContentPrefix]
	}
	return Hash(normalizeForFingerprint(title + "\n" + string(runes)))
}

func normalizeForFingerprint(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}
