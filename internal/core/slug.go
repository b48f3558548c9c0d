package core

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"unicode"
)

// Slugify lowercases name and collapses any non-alphanumeric run into a
// single hyphen. Empty input yields "lab".
func Slugify(name string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) && r < 128 || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastHyphen = false
			continue
		}
		if !lastHyphen {
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	s := strings.Trim(b.String(), "-")
	if s == "" {
		return "lab"
	}
	return s
}

// SlugSuffix returns a short random hex suffix used to disambiguate
// colliding slugs.
func SlugSuffix() string {
	var buf [3]byte
	_, _ = rand.Read(buf[:])
	return hex.EncodeToString(buf[:])
}

// ForkSlug derives the slug for a fork of the workspace with slug src.
func ForkSlug(src string) string {
	return src + "-fork-" + SlugSuffix()
}
