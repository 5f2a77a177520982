package intake

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/NoobyNull/laminark/internal/store"
)

// recentWindow bounds how many of the project's most recent live
// observations the near-duplicate check considers.
const recentWindow = 50

// nearDuplicateThreshold is the token-Jaccard similarity above which two
// pieces of content are treated as near-duplicates.
const nearDuplicateThreshold = 0.9

// NormalizeContent collapses whitespace and lowercases content for digesting
// and near-duplicate comparison.
func NormalizeContent(content string) string {
	fields := strings.Fields(content)
	return strings.ToLower(strings.Join(fields, " "))
}

// Digest returns the content-address used for exact-duplicate detection:
// a SHA-256 over the normalized content plus source.
func Digest(content, source string) string {
	sum := sha256.Sum256([]byte(NormalizeContent(content) + "\x00" + source))
	return hex.EncodeToString(sum[:])
}

// SaveGuardResult is the save-guard's verdict.
type SaveGuardResult struct {
	Save        bool
	Reason      string
	DuplicateOf string // observation id, when Save is false due to a duplicate
}

// SaveGuard is the content-addressed near-duplicate filter applied at
// intake, backed by the store's unique digest index for the exact case and
// an in-process recent-window scan for near-duplicates.
type SaveGuard struct {
	db *store.Store
}

// NewSaveGuard wraps a store handle.
func NewSaveGuard(db *store.Store) *SaveGuard {
	return &SaveGuard{db: db}
}

// Check decides whether content should be saved for a project, given its
// digest computed by Digest.
func (g *SaveGuard) Check(projectTag, content, digest string) (SaveGuardResult, error) {
	existing, err := g.db.FindByDigest(projectTag, digest)
	if err != nil {
		return SaveGuardResult{}, err
	}
	if existing != nil {
		return SaveGuardResult{Save: false, Reason: "exact duplicate", DuplicateOf: existing.ID}, nil
	}

	recent, err := g.db.RecentObservations(projectTag, recentWindow)
	if err != nil {
		return SaveGuardResult{}, err
	}

	normalized := tokenize(NormalizeContent(content))
	for _, r := range recent {
		sim := jaccard(normalized, tokenize(NormalizeContent(r.Content)))
		if sim >= nearDuplicateThreshold {
			return SaveGuardResult{Save: false, Reason: "near duplicate", DuplicateOf: r.ID}, nil
		}
	}

	return SaveGuardResult{Save: true, Reason: "novel content"}, nil
}

func tokenize(s string) []string {
	return strings.Fields(s)
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	setA := map[string]bool{}
	for _, t := range a {
		setA[t] = true
	}
	setB := map[string]bool{}
	for _, t := range b {
		setB[t] = true
	}
	intersection := 0
	for t := range setA {
		if setB[t] {
			intersection++
		}
	}
	union := len(setA)
	for t := range setB {
		if !setA[t] {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
