package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "nomic-embed-text" || len(req.Input) != 2 {
			t.Errorf("request = %+v", req)
		}
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{
			Embeddings: [][]float32{{0.1, 0.2}, {0.3, 0.4}},
		})
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, "nomic-embed-text")
	vecs, err := o.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 2 || vecs[1][0] != 0.3 {
		t.Errorf("vecs = %v", vecs)
	}

	emb, ok := o.(Embedder)
	if !ok {
		t.Fatal("ollama adapter does not satisfy Embedder")
	}
	if emb.ModelVersion() != "nomic-embed-text" {
		t.Errorf("ModelVersion = %q", emb.ModelVersion())
	}
}

func TestOllamaEmbed_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusInternalServerError)
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, "nomic-embed-text")
	_, err := o.Embed(context.Background(), []string{"a"})
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Errorf("Embed = %v, want ErrGatewayUnavailable", err)
	}
}

func TestOllamaEmbed_Unreachable(t *testing.T) {
	o := NewOllama("http://127.0.0.1:1", "nomic-embed-text")
	_, err := o.Embed(context.Background(), []string{"a"})
	if !errors.Is(err, ErrGatewayUnavailable) && !errors.Is(err, ErrGatewayTimeout) {
		t.Errorf("Embed = %v, want a gateway sentinel", err)
	}
}

func TestOllamaComplete_Streaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s", r.URL.Path)
		}
		chunks := []ollamaChatChunk{
			{Message: ollamaChatMessage{Role: "assistant", Content: "hel"}},
			{Message: ollamaChatMessage{Role: "assistant", Content: "lo"}, Done: true},
		}
		enc := json.NewEncoder(w)
		for _, c := range chunks {
			_ = enc.Encode(c)
		}
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, "nomic-embed-text")
	stream, err := o.Complete(context.Background(), CompletionRequest{UserMessage: "hi", Stream: true})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	out, err := Collect(stream)
	if err != nil || out != "hello" {
		t.Errorf("Collect = %q, %v", out, err)
	}
}
