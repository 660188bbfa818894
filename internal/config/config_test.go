package config

import (
	"testing"
	"time"

	"github.com/nfraser/mail-triage/internal/core"
)

func TestDefaults(t *testing.T) {
	cfg := NewFromViper(NewEmptyViper())

	if got := cfg.GetLLM().Provider; got != "openai" {
		t.Errorf("default provider = %q, want openai", got)
	}
	if got := cfg.GetStore().Type; got != "sqlite" {
		t.Errorf("default store type = %q, want sqlite", got)
	}

	mail := cfg.GetMail()
	if mail.Folder != "INBOX" {
		t.Errorf("default folder = %q, want INBOX", mail.Folder)
	}
	if mail.PollInterval != 5*time.Minute {
		t.Errorf("default poll interval = %v, want 5m", mail.PollInterval)
	}
	if mail.FetchWindow != 7*24*time.Hour {
		t.Errorf("default fetch window = %v, want 168h", mail.FetchWindow)
	}
	if mail.FetchLimit != 50 {
		t.Errorf("default fetch limit = %d, want 50", mail.FetchLimit)
	}

	pipeline := cfg.GetPipeline()
	if pipeline.FYIInformationalTasks {
		t.Error("fyi informational tasks should default off")
	}
	if pipeline.MoveSpam || pipeline.ArchiveNewsletters {
		t.Error("mailbox actions should default off")
	}

	selector := cfg.GetSelector()
	if selector.MaxExamples != 5 || selector.SubjectBudget != 100 || selector.BodyBudget != 300 {
		t.Errorf("unexpected selector defaults: %+v", selector)
	}
}

func TestDefaultThresholdsMatchPolicy(t *testing.T) {
	cfg := NewFromViper(NewEmptyViper())

	thresholds := cfg.GetThresholds()
	want := core.DefaultThresholds()
	for category, threshold := range want {
		got, ok := thresholds[category]
		if !ok {
			t.Errorf("threshold for %s missing from config defaults", category)
			continue
		}
		if got != threshold {
			t.Errorf("threshold for %s = %.2f, want %.2f", category, got, threshold)
		}
	}
}

func TestThresholdsSkipUnknownKeys(t *testing.T) {
	v := NewEmptyViper()
	v.Set("thresholds.made_up_category", 0.5)
	v.Set("thresholds.newsletter", 0.95)
	cfg := NewFromViper(v)

	thresholds := cfg.GetThresholds()
	if _, ok := thresholds[core.Category("made_up_category")]; ok {
		t.Error("unknown threshold key should be ignored")
	}
	if got := thresholds[core.CategoryNewsletter]; got != 0.95 {
		t.Errorf("newsletter threshold = %.2f, want 0.95", got)
	}
}

func TestSenderRules(t *testing.T) {
	v := NewEmptyViper()
	v.Set("rules.domains.newsletter", []string{"news.example.com"})
	v.Set("rules.domains.job_listing", []string{"jobs.example.com", "recruit.example.org"})
	cfg := NewFromViper(v)

	rules := cfg.GetSenderRules()
	if len(rules["newsletter"]) != 1 || rules["newsletter"][0] != "news.example.com" {
		t.Errorf("newsletter rule = %v", rules["newsletter"])
	}
	if len(rules["job_listing"]) != 2 {
		t.Errorf("job_listing rule = %v", rules["job_listing"])
	}
}

func TestGetDurationInvalid(t *testing.T) {
	v := NewEmptyViper()
	v.Set("mail.poll_interval", "often")
	cfg := NewFromViper(v)

	if _, err := cfg.GetDuration("mail.poll_interval"); err == nil {
		t.Error("invalid duration should error")
	}

	// The typed getter falls back rather than failing.
	if got := cfg.GetMail().PollInterval; got != 5*time.Minute {
		t.Errorf("fallback poll interval = %v, want 5m", got)
	}
}
