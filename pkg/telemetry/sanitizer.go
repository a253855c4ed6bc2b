// Package telemetry prepares user data for logs and outbound compliance tags.
package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// PIILevel controls how much user content reaches logs.
type PIILevel string

const (
	// PIILevelNone redacts all user content
	PIILevelNone PIILevel = "none"
	// PIILevelHashed replaces detected PII with salted hashes
	PIILevelHashed PIILevel = "hashed"
	// PIILevelFull keeps content as is
	PIILevelFull PIILevel = "full"
)

const redacted = "[REDACTED]"

var (
	emailPattern      = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	ssnPattern        = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	creditCardPattern = regexp.MustCompile(`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`)
	phonePattern      = regexp.MustCompile(`\b\d{3}[-.\s]?\d{3}[-.\s]?\d{4}\b`)
	ipv4Pattern       = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
)

// ParsePIILevel maps a config value to a level. Unknown values hash.
func ParsePIILevel(value string) PIILevel {
	switch PIILevel(strings.ToLower(strings.TrimSpace(value))) {
	case PIILevelNone:
		return PIILevelNone
	case PIILevelFull:
		return PIILevelFull
	default:
		return PIILevelHashed
	}
}

// Sanitizer rewrites prompts, answers and user ids before they are logged.
type Sanitizer struct {
	level PIILevel
	salt  string
}

// NewSanitizer creates a sanitizer. salt keeps hashes stable per deployment.
func NewSanitizer(level PIILevel, salt string) *Sanitizer {
	return &Sanitizer{level: level, salt: salt}
}

// Level reports the configured level.
func (s *Sanitizer) Level() PIILevel {
	return s.level
}

// Text sanitizes a prompt or an answer.
func (s *Sanitizer) Text(input string) string {
	switch s.level {
	case PIILevelNone:
		return redacted
	case PIILevelFull:
		return input
	default:
		return s.hashPII(input)
	}
}

// UserID sanitizes an end user id.
func (s *Sanitizer) UserID(userID string) string {
	if userID == "" {
		return ""
	}
	switch s.level {
	case PIILevelNone:
		return redacted
	case PIILevelFull:
		return userID
	default:
		return s.hash(userID)
	}
}

// hashPII replaces detected PII. Card and SSN patterns run before phone so the
// longer matches win.
func (s *Sanitizer) hashPII(input string) string {
	result := emailPattern.ReplaceAllStringFunc(input, func(match string) string {
		return "[EMAIL:" + s.hash(match) + "]"
	})
	result = ssnPattern.ReplaceAllString(result, "[SSN:REDACTED]")
	result = creditCardPattern.ReplaceAllString(result, "[CC:REDACTED]")
	result = phonePattern.ReplaceAllStringFunc(result, func(match string) string {
		return "[PHONE:" + s.hash(match) + "]"
	})
	return ipv4Pattern.ReplaceAllStringFunc(result, func(match string) string {
		return "[IP:" + s.hash(match) + "]"
	})
}

func (s *Sanitizer) hash(data string) string {
	sum := sha256.Sum256([]byte(data + s.salt))
	return hex.EncodeToString(sum[:])[:8]
}
