// Package paste classifies clipboard pastes as internal (copied from the
// session's own assistant output) or external.
//
// The classification is a heuristic signal for instructors, not a security
// boundary: paraphrased or lightly edited text below the similarity floor is
// reported as external.
package paste

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

const (
	MinLength          = 3
	MinSubstringLength = 10
	MinFuzzyLength     = 20
	SimilarityFloor    = 0.95
)

type Reason string

const (
	ReasonTooShort   Reason = "too_short"
	ReasonCopyBuffer Reason = "copy_buffer"
	ReasonExact      Reason = "exact"
	ReasonSubstring  Reason = "substring"
	ReasonSimilar    Reason = "similar"
	ReasonNoMatch    Reason = "no_match"
)

type Verdict struct {
	Internal   bool    `json:"internal"`
	Reason     Reason  `json:"reason"`
	Similarity float64 `json:"similarity,omitempty"`
}

// Validator holds the assistant messages and the last internal copy for one
// session. Create one per session; it is safe for concurrent use.
type Validator struct {
	mu         sync.Mutex
	history    []string
	seen       map[string]struct{}
	copyBuffer string
	hasCopy    bool
}

func NewValidator() *Validator {
	return &Validator{seen: make(map[string]struct{})}
}

// RegisterAssistantMessage records assistant output that may later be pasted.
func (v *Validator) RegisterAssistantMessage(content string) {
	text := strings.TrimSpace(content)
	if text == "" {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.seen[text]; ok {
		return
	}
	v.seen[text] = struct{}{}
	v.history = append(v.history, text)
}

// MarkInternalCopy remembers text copied inside the editor or chat. Only the
// next paste can match it.
func (v *Validator) MarkInternalCopy(content string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.copyBuffer = strings.TrimSpace(content)
	v.hasCopy = true
}

func (v *Validator) HistorySize() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.history)
}

// Validate classifies pasted content and clears the internal copy buffer.
func (v *Validator) Validate(pasted string) Verdict {
	v.mu.Lock()
	defer v.mu.Unlock()

	verdict := v.classifyLocked(strings.TrimSpace(pasted))
	v.copyBuffer = ""
	v.hasCopy = false
	return verdict
}

func (v *Validator) classifyLocked(text string) Verdict {
	n := utf8.RuneCountInString(text)
	if n < MinLength {
		return Verdict{Reason: ReasonTooShort}
	}

	if v.hasCopy && text == v.copyBuffer {
		return Verdict{Internal: true, Reason: ReasonCopyBuffer}
	}

	if _, ok := v.seen[text]; ok {
		return Verdict{Internal: true, Reason: ReasonExact}
	}

	if n >= MinSubstringLength {
		for _, msg := range v.history {
			if strings.Contains(msg, text) {
				return Verdict{Internal: true, Reason: ReasonSubstring}
			}
		}
	}

	if n >= MinFuzzyLength {
		best := 0.0
		for _, msg := range v.history {
			s := Similarity(text, msg)
			if s >= SimilarityFloor {
				return Verdict{Internal: true, Reason: ReasonSimilar, Similarity: s}
			}
			if s > best {
				best = s
			}
		}
		return Verdict{Reason: ReasonNoMatch, Similarity: best}
	}

	return Verdict{Reason: ReasonNoMatch}
}

// Similarity is 1 - editDistance/len(longer), measured in runes. Two empty
// strings are identical.
func Similarity(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longer := la
	if lb > longer {
		longer = lb
	}
	if longer == 0 {
		return 1.0
	}
	d := levenshtein.ComputeDistance(a, b)
	return float64(longer-d) / float64(longer)
}
