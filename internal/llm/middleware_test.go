package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

type scriptedClient struct {
	errs  []error
	calls int
}

func (s *scriptedClient) Name() string { return "scripted" }
func (s *scriptedClient) Close() error { return nil }
func (s *scriptedClient) GenerateJSON(context.Context, string, any) (json.RawMessage, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return json.RawMessage(`{"ok":true}`), nil
}

func TestRetryRecoversFromTransientErrors(t *testing.T) {
	inner := &scriptedClient{errs: []error{errors.New("503"), errors.New("503")}}
	cli := Wrap(inner, Retry(3, time.Millisecond))
	raw, err := cli.GenerateJSON(context.Background(), "p", nil)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if string(raw) != `{"ok":true}` || inner.calls != 3 {
		t.Fatalf("raw=%s calls=%d", raw, inner.calls)
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	inner := &scriptedClient{errs: []error{&PermanentError{Err: errors.New("bad api key")}}}
	_, err := Wrap(inner, Retry(5, time.Millisecond)).GenerateJSON(context.Background(), "p", nil)
	var pErr *PermanentError
	if !errors.As(err, &pErr) || inner.calls != 1 {
		t.Fatalf("err=%v calls=%d", err, inner.calls)
	}
}

func TestRetryStopsOnDeadline(t *testing.T) {
	inner := &scriptedClient{errs: []error{context.DeadlineExceeded}}
	_, err := Wrap(inner, Retry(5, time.Millisecond)).GenerateJSON(context.Background(), "p", nil)
	if !errors.Is(err, context.DeadlineExceeded) || inner.calls != 1 {
		t.Fatalf("err=%v calls=%d", err, inner.calls)
	}
}

type slowClient struct{ scriptedClient }

func (s *slowClient) GenerateJSON(ctx context.Context, _ string, _ any) (json.RawMessage, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestTimeoutBoundsEachCall(t *testing.T) {
	cli := Wrap(&slowClient{}, Timeout(10*time.Millisecond))
	start := time.Now()
	_, err := cli.GenerateJSON(context.Background(), "p", nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("timeout not applied")
	}
}

func TestRateLimitSpacesRequests(t *testing.T) {
	cli := Wrap(&scriptedClient{}, RateLimit(20, 1))
	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := cli.GenerateJSON(context.Background(), "p", nil); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Fatalf("expected throttling to ~100ms, got %v", elapsed)
	}
}

func TestExtractJSONStripsFences(t *testing.T) {
	raw, err := extractJSON("```json\n{\"a\":1}\n```")
	if err != nil || string(raw) != `{"a":1}` {
		t.Fatalf("raw=%s err=%v", raw, err)
	}
	if _, err := extractJSON("not json"); !errors.Is(err, ErrInvalidJSON) {
		t.Fatalf("expected ErrInvalidJSON, got %v", err)
	}
}

func TestFakeClientBuildsBlueprintFromInput(t *testing.T) {
	f := NewFakeClient()
	input := map[string]any{
		"context": map[string]any{
			"customerName": "Acme",
			"scenarios":    []map[string]any{{"name": "Ransomware", "status": "validated"}},
		},
	}
	raw, err := f.GenerateJSON(WithPhase(context.Background(), "blueprint"), "p", input)
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		ExecutiveTheme string            `json:"executiveTheme"`
		Sections       []json.RawMessage `json:"sections"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	if out.ExecutiveTheme != "Security transformation for Acme" || len(out.Sections) != 2 {
		t.Fatalf("unexpected fake payload: %s", raw)
	}
	if f.Calls() != 1 {
		t.Fatalf("calls = %d", f.Calls())
	}
}
