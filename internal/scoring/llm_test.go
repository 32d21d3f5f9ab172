package scoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-scoring-go/internal/apperr"
	"call-scoring-go/internal/config"
	"call-scoring-go/internal/types"
)

func testDashboardType() *types.DashboardType {
	return &types.DashboardType{
		ID:           "dt-1",
		InternalName: "default",
		KPIs: []types.KPIDefinition{
			{Key: "empathy", Weight: 60, MinValue: 0, MaxValue: 10},
			{Key: "resolution", Weight: 40, MinValue: 0, MaxValue: 10},
		},
		Profile: &types.LLMProfile{
			SystemPrompt: "You score calls.",
			UserPrompt:   "Score: {transcription}",
			Model:        "gpt-4o-mini",
			Temperature:  0.1,
			MaxTokens:    500,
		},
	}
}

func staticKey(key string) APIKeyFunc {
	return func(context.Context, string) (string, error) { return key, nil }
}

func newTestScorer(url string, key APIKeyFunc) *LLMScorer {
	return NewLLMScorer(config.LLMConfig{
		APIURL:       url,
		Timeout:      2 * time.Second,
		MaxRetryTime: 100 * time.Millisecond,
	}, key)
}

func chatResponse(content string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"content": content}},
		},
	})
	return string(b)
}

func TestLLMScorer_Score(t *testing.T) {
	call := &types.Call{ID: "call-1", CompanyID: "co-1", Transcript: "hello"}

	t.Run("parses scores from choices content", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/chat/completions", r.URL.Path)
			assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

			var req chatRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "gpt-4o-mini", req.Model)
			assert.Equal(t, "Score: hello", req.Messages[1].Content)

			w.Write([]byte(chatResponse(`{"empathy": 8, "resolution": 6}`)))
		}))
		defer srv.Close()

		scores, err := newTestScorer(srv.URL, staticKey("sk-test")).Score(context.Background(), call, testDashboardType())
		require.NoError(t, err)
		assert.Equal(t, 8.0, scores["empathy"])
		assert.Equal(t, 6.0, scores["resolution"])
	})

	t.Run("recovers JSON wrapped in markdown fences", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(chatResponse("Here are the scores:\n```json\n{\"empathy\": 7}\n```")))
		}))
		defer srv.Close()

		scores, err := newTestScorer(srv.URL, staticKey("k")).Score(context.Background(), call, testDashboardType())
		require.NoError(t, err)
		assert.Equal(t, 7.0, scores["empathy"])
	})

	t.Run("invalid response body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(chatResponse("I cannot score this call.")))
		}))
		defer srv.Close()

		_, err := newTestScorer(srv.URL, staticKey("k")).Score(context.Background(), call, testDashboardType())
		assert.ErrorIs(t, err, apperr.ErrLLMResponseInvalid)
	})

	t.Run("4xx is permanent", func(t *testing.T) {
		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			http.Error(w, "bad key", http.StatusUnauthorized)
		}))
		defer srv.Close()

		_, err := newTestScorer(srv.URL, staticKey("k")).Score(context.Background(), call, testDashboardType())
		assert.ErrorIs(t, err, apperr.ErrLLMTransport)
		assert.Equal(t, 1, calls, "client errors should not retry")
	})

	t.Run("5xx retries then succeeds", func(t *testing.T) {
		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls == 1 {
				http.Error(w, "overloaded", http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte(chatResponse(`{"empathy": 5}`)))
		}))
		defer srv.Close()

		scorer := NewLLMScorer(config.LLMConfig{
			APIURL:       srv.URL,
			Timeout:      2 * time.Second,
			MaxRetryTime: 5 * time.Second,
		}, staticKey("k"))
		scores, err := scorer.Score(context.Background(), call, testDashboardType())
		require.NoError(t, err)
		assert.Equal(t, 5.0, scores["empathy"])
		assert.GreaterOrEqual(t, calls, 2)
	})

	t.Run("no profile means not configured", func(t *testing.T) {
		dt := testDashboardType()
		dt.Profile = nil
		_, err := newTestScorer("http://unused", staticKey("k")).Score(context.Background(), call, dt)
		assert.ErrorIs(t, err, apperr.ErrLLMNotConfigured)
	})

	t.Run("key resolution failure propagates", func(t *testing.T) {
		failing := func(context.Context, string) (string, error) {
			return "", apperr.ErrDecryptionFailure
		}
		_, err := newTestScorer("http://unused", failing).Score(context.Background(), call, testDashboardType())
		assert.ErrorIs(t, err, apperr.ErrDecryptionFailure)
	})

	t.Run("mock mode is deterministic and offline", func(t *testing.T) {
		scorer := NewLLMScorer(config.LLMConfig{MockMode: true}, staticKey("unused"))
		dt := testDashboardType()
		first, err := scorer.Score(context.Background(), call, dt)
		require.NoError(t, err)
		second, err := scorer.Score(context.Background(), call, dt)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Len(t, first, len(dt.KPIs))
	})
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain object", `{"a": 1}`, `{"a": 1}`},
		{"nested object", `{"a": {"b": 2}}`, `{"a": {"b": 2}}`},
		{"surrounded by prose", `Sure! {"a": 1} hope that helps`, `{"a": 1}`},
		{"fenced", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"no object", "nothing here", ""},
		{"unbalanced", `{"a": 1`, ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.in))
		})
	}
}
