package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/icco/cinemate/lib/testsupport"
	openai "github.com/sashabaranov/go-openai"
)

func chatCompletionServer(t *testing.T, status int, content string, seen *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if seen != nil {
			data, _ := io.ReadAll(r.Body)
			*seen = string(data)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			fmt.Fprint(w, `{"error":{"message":"rate limited","type":"rate_limit_error"}}`)
			return
		}
		resp := map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Errorf("encode: %v", err)
		}
	}))
}

func newTestOpenAIClient(t *testing.T, baseURL string) *OpenAIClient {
	t.Helper()
	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = baseURL + "/v1"
	client, err := NewOpenAIClient(cfg, openai.GPT4oMini, 5, testsupport.Logger())
	if err != nil {
		t.Fatalf("NewOpenAIClient: %v", err)
	}
	return client
}

func TestOpenAIClientRecommend(t *testing.T) {
	var seen string
	srv := chatCompletionServer(t, http.StatusOK, `{"recommendations":["157336","155",27205]}`, &seen)
	defer srv.Close()

	ids, err := newTestOpenAIClient(t, srv.URL).Recommend(context.Background(), "Inception")
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if fmt.Sprint(ids) != "[157336 155 27205]" {
		t.Fatalf("ids = %v", ids)
	}
	if !strings.Contains(seen, `Recommend 5 movies similar to \"Inception\".`) {
		t.Fatalf("prompt not rendered into request: %s", seen)
	}
	if !strings.Contains(seen, `"json_object"`) {
		t.Fatalf("request should ask for a JSON object reply: %s", seen)
	}
}

func TestOpenAIClientInvalidReply(t *testing.T) {
	srv := chatCompletionServer(t, http.StatusOK, `Here are some movies: Interstellar, Tenet`, nil)
	defer srv.Close()

	_, err := newTestOpenAIClient(t, srv.URL).Recommend(context.Background(), "Inception")
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *ProviderError", err)
	}
	if pe.Provider != "openai" {
		t.Fatalf("Provider = %q", pe.Provider)
	}
}

func TestOpenAIClientAPIError(t *testing.T) {
	srv := chatCompletionServer(t, http.StatusTooManyRequests, "", nil)
	defer srv.Close()

	_, err := newTestOpenAIClient(t, srv.URL).Recommend(context.Background(), "Inception")
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *ProviderError", err)
	}
	if pe.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("StatusCode = %d, want 429", pe.StatusCode)
	}
}
