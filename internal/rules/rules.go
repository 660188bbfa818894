// Package rules maps sender domains to fixed categories, letting
// known senders bypass the completion service entirely.
package rules

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nfraser/mail-triage/internal/core"
)

// Engine resolves sender addresses against configured domain rules.
type Engine struct {
	domains map[string]core.Category
	logger  *zap.Logger
}

// NewEngine builds a rules engine from a category → domain-list map.
// Domains are normalized (trimmed, lowercased); unknown category keys
// are skipped with a warning rather than failing startup.
func NewEngine(byCategory map[string][]string, logger *zap.Logger) *Engine {
	domains := make(map[string]core.Category)
	for rawCategory, list := range byCategory {
		category, err := core.ParseCategory(rawCategory)
		if err != nil {
			if logger != nil {
				logger.Warn("Skipping sender rule with unknown category",
					zap.String("category", rawCategory))
			}
			continue
		}
		for _, domain := range list {
			domain = strings.ToLower(strings.TrimSpace(domain))
			if domain == "" {
				continue
			}
			domains[domain] = category
		}
	}

	if len(domains) > 0 && logger != nil {
		logger.Info("Initialized sender rules", zap.Int("domains", len(domains)))
	}

	return &Engine{domains: domains, logger: logger}
}

// Match checks whether the sender's domain has a configured category.
func (e *Engine) Match(sender string) (core.Category, string, bool) {
	if len(e.domains) == 0 {
		return "", "", false
	}

	parts := strings.Split(sender, "@")
	if len(parts) != 2 {
		return "", "", false
	}
	domain := strings.ToLower(strings.TrimSpace(parts[1]))

	category, ok := e.domains[domain]
	if !ok {
		return "", "", false
	}

	if e.logger != nil {
		e.logger.Debug("Sender domain matched rule",
			zap.String("domain", domain),
			zap.String("category", string(category)))
	}
	reason := fmt.Sprintf("Sender domain %s is configured as %s.", domain, category)
	return category, reason, true
}
