package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// LLMClient generates a JSON document from a prompt and a JSON-encodable input.
type LLMClient interface {
	Name() string
	GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error)
	Close() error
}

var ErrInvalidJSON = errors.New("llm: invalid JSON from model")

// PermanentError marks a failure that retrying cannot fix (bad key, bad model).
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return "llm: permanent: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

type ctxKeyPhase struct{}

// WithPhase tags ctx with the generation phase used in logs.
func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, ctxKeyPhase{}, phase)
}

// PhaseFrom returns the phase stored in ctx.
func PhaseFrom(ctx context.Context) string {
	if s, ok := ctx.Value(ctxKeyPhase{}).(string); ok && s != "" {
		return s
	}
	return "unknown"
}

// buildPrompt concatenates the instruction prompt and the indented input.
func buildPrompt(prompt string, input any) (string, error) {
	in, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return "", err
	}
	return prompt + "\n\n[INPUT JSON]\n" + string(in), nil
}

// extractJSON trims code fences some models wrap around JSON answers and
// checks the remainder parses.
func extractJSON(text string) (json.RawMessage, error) {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if s == "" || !json.Valid([]byte(s)) {
		return nil, ErrInvalidJSON
	}
	return json.RawMessage(s), nil
}

// EstimateTokens approximates a token count at four bytes per token.
func EstimateTokens(b []byte) int {
	if len(b) == 0 {
		return 0
	}
	return (len(b) + 3) / 4
}
