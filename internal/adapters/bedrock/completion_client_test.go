package bedrock

import (
	"testing"

	"go.uber.org/zap"
)

func clientFor(modelID string) *BedrockClient {
	return NewBedrockClient(nil, modelID, 1000, 0.1, 0.9, zap.NewNop())
}

func TestExtractTextClaudeEnvelope(t *testing.T) {
	c := clientFor("anthropic.claude-v2")

	got, err := c.extractText([]byte(`{"completion": "{\"category\": \"fyi\"}"}`))
	if err != nil {
		t.Fatalf("extractText: %v", err)
	}
	if got != `{"category": "fyi"}` {
		t.Errorf("completion = %q", got)
	}

	if _, err := c.extractText([]byte("not json")); err == nil {
		t.Error("malformed envelope should error")
	}
}

func TestExtractTextTitanEnvelope(t *testing.T) {
	c := clientFor("amazon.titan-text-express-v1")

	got, err := c.extractText([]byte(`{"results": [{"outputText": "hello"}]}`))
	if err != nil {
		t.Fatalf("extractText: %v", err)
	}
	if got != "hello" {
		t.Errorf("output = %q", got)
	}

	if _, err := c.extractText([]byte(`{"results": []}`)); err == nil {
		t.Error("empty results should error")
	}
}

func TestExtractTextGenericEnvelope(t *testing.T) {
	c := clientFor("mistral.mistral-7b")

	tests := []struct {
		name string
		body string
		want string
	}{
		{"output field", `{"output": "a"}`, "a"},
		{"text field", `{"text": "b"}`, "b"},
		{"response field", `{"response": "c"}`, "c"},
		{"raw body fallback", `{"something_else": 1}`, `{"something_else": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.extractText([]byte(tt.body))
			if err != nil {
				t.Fatalf("extractText: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
