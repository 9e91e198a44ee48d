package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"
)

func TestClassifyGatewayErr(t *testing.T) {
	if got := ClassifyGatewayErr(nil); got != nil {
		t.Errorf("nil in, %v out", got)
	}

	if got := ClassifyGatewayErr(context.DeadlineExceeded); !errors.Is(got, ErrGatewayTimeout) {
		t.Errorf("deadline = %v, want ErrGatewayTimeout", got)
	}

	var netErr net.Error = &timeoutErr{}
	if got := ClassifyGatewayErr(fmt.Errorf("dial: %w", netErr)); !errors.Is(got, ErrGatewayTimeout) {
		t.Errorf("net timeout = %v, want ErrGatewayTimeout", got)
	}

	if got := ClassifyGatewayErr(errors.New("connection refused")); !errors.Is(got, ErrGatewayUnavailable) {
		t.Errorf("generic = %v, want ErrGatewayUnavailable", got)
	}

	// Already-classified errors pass through without re-wrapping.
	classified := fmt.Errorf("%w: original", ErrGatewayTimeout)
	if got := ClassifyGatewayErr(classified); got != classified {
		t.Errorf("classified error was re-wrapped: %v", got)
	}
}

type timeoutErr struct{}

func (*timeoutErr) Error() string   { return "i/o timeout" }
func (*timeoutErr) Timeout() bool   { return true }
func (*timeoutErr) Temporary() bool { return true }

func TestIsTimeout(t *testing.T) {
	if !IsTimeout(fmt.Errorf("%w: x", ErrGatewayTimeout)) {
		t.Error("wrapped ErrGatewayTimeout not recognised")
	}
	if IsTimeout(fmt.Errorf("%w: x", ErrGatewayUnavailable)) {
		t.Error("unavailable misread as timeout")
	}
}

func TestCollect(t *testing.T) {
	ch := make(chan StreamChunk, 3)
	ch <- StreamChunk{Text: "hello "}
	ch <- StreamChunk{Text: "world"}
	close(ch)

	out, err := Collect(ch)
	if err != nil || out != "hello world" {
		t.Errorf("Collect = %q, %v", out, err)
	}

	ch = make(chan StreamChunk, 2)
	ch <- StreamChunk{Text: "partial"}
	ch <- StreamChunk{Error: errors.New("mid-stream failure")}
	close(ch)
	if _, err := Collect(ch); err == nil {
		t.Error("stream error swallowed")
	}
}

func TestNew(t *testing.T) {
	for _, provider := range []string{ProviderClaude, ProviderOpenAI, ProviderOllama} {
		if _, err := New(provider, "", "key", ""); err != nil {
			t.Errorf("New(%s): %v", provider, err)
		}
	}
	if _, err := New("bard", "", "", ""); err == nil {
		t.Error("unknown provider accepted")
	}
}

// countingEmbedder fails n times then succeeds.
type countingEmbedder struct {
	failures int
	calls    int
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls++
	if c.calls <= c.failures {
		return nil, errors.New("connection refused")
	}
	return [][]float32{{1, 0}}, nil
}

func (c *countingEmbedder) ModelVersion() string { return "counting-v1" }

func TestRetryingEmbedder(t *testing.T) {
	inner := &countingEmbedder{failures: 2}
	r := NewRetryingEmbedder(inner, 3, time.Millisecond)

	vecs, err := r.Embed(context.Background(), []string{"x"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 1 || inner.calls != 3 {
		t.Errorf("vecs = %v after %d calls", vecs, inner.calls)
	}
	if r.ModelVersion() != "counting-v1" {
		t.Errorf("ModelVersion = %q", r.ModelVersion())
	}
}

func TestRetryingEmbedder_Exhausted(t *testing.T) {
	inner := &countingEmbedder{failures: 10}
	r := NewRetryingEmbedder(inner, 3, time.Millisecond)

	_, err := r.Embed(context.Background(), []string{"x"})
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("Embed = %v, want ErrGatewayUnavailable", err)
	}
	if inner.calls != 3 {
		t.Errorf("inner called %d times, want 3", inner.calls)
	}
}

func TestRetryingEmbedder_ContextCancel(t *testing.T) {
	inner := &countingEmbedder{failures: 10}
	r := NewRetryingEmbedder(inner, 5, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Embed(ctx, []string{"x"}); err == nil {
		t.Error("cancelled context should stop retries")
	}
	if inner.calls > 1 {
		t.Errorf("inner called %d times after cancellation", inner.calls)
	}
}
