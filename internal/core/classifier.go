package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nfraser/mail-triage/internal/utils"
)

// Classifier turns one email plus its few-shot examples into a
// ClassificationResult. It never returns an error: every failure mode
// (service error, content filter, unparseable output) collapses into a
// fallback fyi result so that nothing downstream ever sees a
// half-formed classification.
type Classifier struct {
	client        CompletionClient
	rules         SenderRules
	textProcessor *utils.TextProcessor
	logger        *zap.Logger
	maxBodySize   int
	promptFormat  string
}

// classificationResponse is the JSON shape expected from the model.
type classificationResponse struct {
	Category    string   `json:"category"`
	Explanation string   `json:"explanation"`
	Confidence  *float64 `json:"confidence,omitempty"`
}

// NewClassifier creates a new classifier. rules may be nil when no
// sender overrides are configured.
func NewClassifier(
	client CompletionClient,
	rules SenderRules,
	textProcessor *utils.TextProcessor,
	maxBodySize int,
	logger *zap.Logger,
) *Classifier {
	return &Classifier{
		client:        client,
		rules:         rules,
		textProcessor: textProcessor,
		logger:        logger,
		maxBodySize:   maxBodySize,
		promptFormat: `You are an email triage assistant. Classify the following email into exactly one category:
- required_personal_action: the recipient personally must do something
- team_action: the recipient's team must do something
- optional_action: an action the recipient may take but is not required to
- job_listing: a job posting or recruiting message
- optional_event: an invitation to an optional event
- work_relevant: useful work information, no action needed
- fyi: informational, no action needed
- newsletter: a periodic mailing list or digest
- spam_to_delete: unwanted mail that should be deleted

Respond with a JSON object containing:
- category: string (one of the categories above)
- explanation: string (one or two sentences on why this category fits)
- confidence: number between 0 and 1 (how confident you are)

%sEmail:
From: %s
Subject: %s
Body:
%s

Respond only with the JSON object and nothing else.`,
	}
}

// Classify produces a well-formed result for the email. The examples
// are embedded as few-shot guidance; pass nil when the corpus has
// nothing relevant.
func (c *Classifier) Classify(ctx context.Context, email *Email, examples []LearningExample) *ClassificationResult {
	if c.rules != nil {
		if category, reason, ok := c.rules.Match(email.From); ok {
			c.logger.Info("Sender rule matched, skipping completion call",
				zap.String("email_id", email.ID),
				zap.String("sender", email.From),
				zap.String("category", string(category)))
			confidence := 1.0
			return &ClassificationResult{
				EmailID:      email.ID,
				Category:     category,
				Explanation:  reason,
				Confidence:   &confidence,
				ModelUsed:    "sender_rules",
				ClassifiedAt: time.Now(),
			}
		}
	}

	prompt := c.buildPrompt(email, examples)

	responseText, err := c.client.Complete(ctx, prompt)
	if err != nil {
		c.logger.Warn("Completion call failed, using fallback classification",
			zap.String("email_id", email.ID),
			zap.Error(err))
		return c.fallbackResult(email, fmt.Sprintf("completion failed: %v", err))
	}

	parsed, err := parseClassification(responseText)
	if err != nil {
		c.logger.Warn("Unparseable completion response, using fallback classification",
			zap.String("email_id", email.ID),
			zap.Error(err))
		return c.fallbackResult(email, fmt.Sprintf("unparseable response: %v", err))
	}

	explanation := strings.TrimSpace(parsed.explanation)
	if explanation == "" {
		explanation = fallbackExplanation(parsed.category, email.Subject)
	}

	return &ClassificationResult{
		EmailID:      email.ID,
		Category:     parsed.category,
		Explanation:  explanation,
		Confidence:   parsed.confidence,
		ModelUsed:    c.client.ModelID(),
		ClassifiedAt: time.Now(),
	}
}

// buildPrompt embeds the selected examples as guidance ahead of the
// email itself.
func (c *Classifier) buildPrompt(email *Email, examples []LearningExample) string {
	var guidance strings.Builder
	if len(examples) > 0 {
		guidance.WriteString("Previously confirmed classifications for guidance:\n")
		for _, ex := range examples {
			fmt.Fprintf(&guidance, "- From: %s | Subject: %s | Category: %s\n",
				ex.Sender, ex.Subject, ex.Category)
			if ex.BodySnippet != "" {
				fmt.Fprintf(&guidance, "  Body: %s\n", ex.BodySnippet)
			}
		}
		guidance.WriteString("\n")
	}

	body := c.textProcessor.ProcessText(email.Body, c.maxBodySize)
	return fmt.Sprintf(c.promptFormat, guidance.String(), email.From, email.Subject, body)
}

// fallbackResult builds the fyi fallback used whenever the completion
// collaborator fails or returns unusable output.
func (c *Classifier) fallbackResult(email *Email, reason string) *ClassificationResult {
	return &ClassificationResult{
		EmailID:        email.ID,
		Category:       CategoryFYI,
		Explanation:    fallbackExplanation(CategoryFYI, email.Subject),
		ModelUsed:      c.client.ModelID(),
		ClassifiedAt:   time.Now(),
		Fallback:       true,
		FallbackReason: reason,
	}
}

type parsedClassification struct {
	category    Category
	explanation string
	confidence  *float64
}

// parseClassification applies the strict-then-defensive parse:
// unmarshal as-is, then the outermost brace span, then a category
// token scan over the prose. Anything past that is unparseable.
func parseClassification(text string) (*parsedClassification, error) {
	var resp classificationResponse
	if err := json.Unmarshal([]byte(text), &resp); err == nil {
		return validateResponse(&resp)
	}

	// Salvage a JSON object embedded in prose.
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(text[start:end+1]), &resp); err == nil {
			if parsed, err := validateResponse(&resp); err == nil {
				return parsed, nil
			}
		}
	}

	// Last resort: a category token somewhere in the prose.
	if category, ok := rescueCategoryToken(text); ok {
		return &parsedClassification{category: category}, nil
	}

	return nil, fmt.Errorf("no category found in response (%d bytes)", len(text))
}

func validateResponse(resp *classificationResponse) (*parsedClassification, error) {
	category, err := ParseCategory(resp.Category)
	if err != nil {
		return nil, err
	}

	confidence := resp.Confidence
	if confidence != nil && (*confidence < 0 || *confidence > 1) {
		confidence = nil
	}

	return &parsedClassification{
		category:    category,
		explanation: resp.Explanation,
		confidence:  confidence,
	}, nil
}

// rescueCategoryToken scans prose for a known category literal. Longer
// literals are checked first so "required_personal_action" is not
// shadowed by a shorter match.
func rescueCategoryToken(text string) (Category, bool) {
	normalized := strings.ToLower(text)
	normalized = strings.ReplaceAll(normalized, "-", "_")
	normalized = strings.ReplaceAll(normalized, " ", "_")

	candidates := AllCategories()
	best := Category("")
	for _, c := range candidates {
		if strings.Contains(normalized, string(c)) && len(c) > len(best) {
			best = c
		}
	}
	if best == "" {
		return "", false
	}
	return best, true
}

// fallbackExplanation produces a category-specific, always non-empty
// explanation referencing the email subject.
func fallbackExplanation(category Category, subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "(no subject)"
	}

	switch category {
	case CategoryRequiredPersonalAction:
		return fmt.Sprintf("%q appears to require a personal action from you.", subject)
	case CategoryTeamAction:
		return fmt.Sprintf("%q appears to require an action from your team.", subject)
	case CategoryOptionalAction:
		return fmt.Sprintf("%q suggests an action you may optionally take.", subject)
	case CategoryJobListing:
		return fmt.Sprintf("%q looks like a job listing or recruiting message.", subject)
	case CategoryOptionalEvent:
		return fmt.Sprintf("%q looks like an invitation to an optional event.", subject)
	case CategoryWorkRelevant:
		return fmt.Sprintf("%q contains work-relevant information with no action needed.", subject)
	case CategoryNewsletter:
		return fmt.Sprintf("%q appears to be a newsletter or mailing list digest.", subject)
	case CategorySpamToDelete:
		return fmt.Sprintf("%q looks like unwanted mail that can be deleted.", subject)
	default:
		return fmt.Sprintf("%q was classified as informational; the message could not be analyzed in more detail.", subject)
	}
}
