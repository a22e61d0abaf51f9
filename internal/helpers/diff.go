package helpers

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// DiffSnapshot records what a url's content looked like the last time it
// was fetched.
type DiffSnapshot struct {
	Hash     string
	LastSeen time.Time
}

// DiffDecision reports how freshly fetched content relates to the previous
// snapshot of the same url.
type DiffDecision struct {
	CurrentHash  string
	PreviousHash string
	Changed      bool
	Age          time.Duration
}

// NormalizeForDiff collapses whitespace and lowercases content so hashes
// survive cosmetic reflows of the same page.
func NormalizeForDiff(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(strings.Join(fields, " "))
}

// ContentHash returns the hex SHA-256 of the normalized content.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(NormalizeForDiff(content)))
	return hex.EncodeToString(sum[:])
}

// EvaluateDiff compares content against the previous snapshot. Content with
// no snapshot counts as changed.
func EvaluateDiff(prev DiffSnapshot, content string, seenAt time.Time) DiffDecision {
	decision := DiffDecision{
		CurrentHash:  ContentHash(content),
		PreviousHash: prev.Hash,
	}
	decision.Changed = prev.Hash == "" || prev.Hash != decision.CurrentHash
	if !seenAt.IsZero() && !prev.LastSeen.IsZero() {
		decision.Age = seenAt.Sub(prev.LastSeen)
	}
	return decision
}
