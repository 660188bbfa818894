package core

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// DefaultThresholds returns the per-category auto-approval thresholds
// used when the configuration does not override them. A threshold of
// 1.0 means the category is never auto-approved: low-stakes categories
// are cheap to approve automatically, action categories always go to a
// human.
func DefaultThresholds() map[Category]float64 {
	return map[Category]float64{
		CategoryFYI:                    0.90,
		CategoryNewsletter:             0.70,
		CategorySpamToDelete:           0.70,
		CategoryOptionalAction:         0.80,
		CategoryOptionalEvent:          0.80,
		CategoryWorkRelevant:           0.80,
		CategoryJobListing:             0.80,
		CategoryRequiredPersonalAction: 1.0,
		CategoryTeamAction:             1.0,
	}
}

// Policy maps a classification result to an auto-approve or
// manual-review decision.
type Policy struct {
	thresholds map[Category]float64
	logger     *zap.Logger
}

// NewPolicy creates a confidence policy. Categories missing from
// thresholds fall back to the defaults; an empty map uses defaults
// throughout.
func NewPolicy(thresholds map[Category]float64, logger *zap.Logger) *Policy {
	merged := DefaultThresholds()
	for category, threshold := range thresholds {
		merged[category] = threshold
	}
	return &Policy{
		thresholds: merged,
		logger:     logger,
	}
}

// Threshold returns the configured threshold for a category.
func (p *Policy) Threshold(category Category) float64 {
	if t, ok := p.thresholds[category]; ok {
		return t
	}
	// Unknown categories cannot be auto-approved.
	return 1.0
}

// Decide computes the auto-approval decision for a result. When the
// model reported no confidence, one is estimated from the explanation
// and the decision records that it was estimated.
func (p *Policy) Decide(result *ClassificationResult) ConfidenceDecision {
	threshold := p.Threshold(result.Category)

	confidence := 0.0
	estimated := false
	if result.Confidence != nil {
		confidence = *result.Confidence
	} else {
		confidence = estimateConfidence(result.Explanation)
		estimated = true
	}

	// Threshold 1.0 (or above) routes to manual review no matter what
	// the model claims.
	autoApproved := threshold < 1.0 && confidence >= threshold

	var reason string
	source := "reported"
	if estimated {
		source = "estimated from explanation"
	}
	if autoApproved {
		reason = fmt.Sprintf("confidence %.2f (%s) meets %s threshold %.2f",
			confidence, source, result.Category, threshold)
	} else if threshold >= 1.0 {
		reason = fmt.Sprintf("%s always requires manual review", result.Category)
	} else {
		reason = fmt.Sprintf("confidence %.2f (%s) below %s threshold %.2f",
			confidence, source, result.Category, threshold)
	}

	p.logger.Debug("Confidence decision",
		zap.String("email_id", result.EmailID),
		zap.String("category", string(result.Category)),
		zap.Float64("confidence", confidence),
		zap.Float64("threshold", threshold),
		zap.Bool("estimated", estimated),
		zap.Bool("auto_approved", autoApproved))

	return ConfidenceDecision{
		AutoApproved: autoApproved,
		Confidence:   confidence,
		Threshold:    threshold,
		Estimated:    estimated,
		Reason:       reason,
	}
}

var hedgeWords = []string{
	"might", "maybe", "possibly", "unclear", "unsure", "not sure",
	"could be", "hard to tell", "ambiguous",
}

var specificityMarkers = []string{
	"deadline", "due", "meeting", "invite", "unsubscribe", "review",
	"sign-off", "approve", "respond", "reply", "attached",
}

// estimateConfidence derives a confidence value from explanation
// completeness and specificity. The estimate is deterministic and
// clamped to (0,1) so a templated fallback explanation never clears a
// high threshold.
func estimateConfidence(explanation string) float64 {
	text := strings.ToLower(strings.TrimSpace(explanation))
	if text == "" {
		return 0.1
	}

	confidence := 0.5
	if len(text) >= 40 {
		confidence += 0.15
	}
	if len(text) >= 120 {
		confidence += 0.10
	}
	for _, marker := range specificityMarkers {
		if strings.Contains(text, marker) {
			confidence += 0.10
			break
		}
	}
	for _, hedge := range hedgeWords {
		if strings.Contains(text, hedge) {
			confidence -= 0.15
		}
	}

	if confidence < 0.05 {
		confidence = 0.05
	}
	if confidence > 0.95 {
		confidence = 0.95
	}
	return confidence
}
