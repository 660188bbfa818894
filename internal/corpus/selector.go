// Package corpus selects few-shot examples from the learning corpus of
// past human-confirmed classifications.
package corpus

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/nfraser/mail-triage/internal/core"
	"github.com/nfraser/mail-triage/internal/utils"
)

// Scoring weights and limits. Entries scoring below the floor are
// excluded even when fewer than MaxExamples remain.
const (
	DefaultMaxExamples   = 5
	DefaultMinScore      = 0.1
	DefaultSubjectBudget = 100
	DefaultBodyBudget    = 300

	subjectWeight = 0.5
	senderWeight  = 0.3
	bodyWeight    = 0.2
)

// Selector scores learning examples against a new email and returns
// the most relevant ones, with subject/body snippets truncated to the
// configured prompt budgets. The selector holds no mutable state and
// is safe to use concurrently for different emails.
type Selector struct {
	maxExamples   int
	minScore      float64
	subjectBudget int
	bodyBudget    int
	textProcessor *utils.TextProcessor
	logger        *zap.Logger
}

// NewSelector creates a similarity selector. Non-positive limits fall
// back to the defaults.
func NewSelector(maxExamples int, minScore float64, subjectBudget, bodyBudget int, textProcessor *utils.TextProcessor, logger *zap.Logger) *Selector {
	if maxExamples <= 0 {
		maxExamples = DefaultMaxExamples
	}
	if minScore <= 0 {
		minScore = DefaultMinScore
	}
	if subjectBudget <= 0 {
		subjectBudget = DefaultSubjectBudget
	}
	if bodyBudget <= 0 {
		bodyBudget = DefaultBodyBudget
	}
	return &Selector{
		maxExamples:   maxExamples,
		minScore:      minScore,
		subjectBudget: subjectBudget,
		bodyBudget:    bodyBudget,
		textProcessor: textProcessor,
		logger:        logger,
	}
}

type scoredExample struct {
	example core.LearningExample
	score   float64
	index   int
}

// Select returns at most maxExamples examples ordered most relevant
// first. Relevance is a weighted combination of subject keyword
// overlap, sender match (exact or domain-level), and body keyword
// overlap.
func (s *Selector) Select(email *core.Email, snapshot core.CorpusSnapshot) []core.LearningExample {
	if len(snapshot.Examples) == 0 {
		return nil
	}

	subjectTokens := tokenize(email.Subject)
	bodyTokens := tokenize(email.Body)

	scored := make([]scoredExample, 0, len(snapshot.Examples))
	for i, ex := range snapshot.Examples {
		score := subjectWeight*overlap(subjectTokens, tokenize(ex.Subject)) +
			senderWeight*senderScore(email.From, ex.Sender) +
			bodyWeight*overlap(bodyTokens, tokenize(ex.BodySnippet))
		if score < s.minScore {
			continue
		}
		scored = append(scored, scoredExample{example: ex, score: score, index: i})
	}

	// Stable order: score descending, corpus position as tiebreak, so
	// the same snapshot always yields the same selection.
	sort.Slice(scored, func(a, b int) bool {
		if scored[a].score != scored[b].score {
			return scored[a].score > scored[b].score
		}
		return scored[a].index < scored[b].index
	})

	if len(scored) > s.maxExamples {
		scored = scored[:s.maxExamples]
	}

	selected := make([]core.LearningExample, len(scored))
	for i, sc := range scored {
		ex := sc.example
		ex.Subject = s.textProcessor.Snippet(ex.Subject, s.subjectBudget)
		ex.BodySnippet = s.textProcessor.Snippet(ex.BodySnippet, s.bodyBudget)
		selected[i] = ex
	}

	s.logger.Debug("Selected few-shot examples",
		zap.String("email_id", email.ID),
		zap.Int("corpus_size", len(snapshot.Examples)),
		zap.Int64("corpus_version", snapshot.Version),
		zap.Int("selected", len(selected)))
	return selected
}

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "you": {}, "your": {}, "with": {},
	"this": {}, "that": {}, "from": {}, "have": {}, "are": {}, "was": {},
	"will": {}, "not": {}, "our": {}, "all": {}, "can": {}, "has": {},
	"please": {}, "regards": {}, "hello": {},
}

// tokenize lowercases, splits on non-alphanumeric runes, and drops
// stopwords and tokens shorter than three characters.
func tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, field := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if len(field) < 3 {
			continue
		}
		if _, stop := stopwords[field]; stop {
			continue
		}
		tokens[field] = struct{}{}
	}
	return tokens
}

// overlap is the Jaccard similarity of two token sets.
func overlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for token := range a {
		if _, ok := b[token]; ok {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}

// senderScore is 1.0 for an exact address match, 0.5 for a shared
// domain, 0 otherwise.
func senderScore(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1.0
	}
	if domainOf(a) != "" && domainOf(a) == domainOf(b) {
		return 0.5
	}
	return 0
}

func domainOf(address string) string {
	parts := strings.Split(address, "@")
	if len(parts) != 2 {
		return ""
	}
	return parts[1]
}
