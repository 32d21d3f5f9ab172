package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"call-scoring-go/internal/apperr"
	"call-scoring-go/internal/config"
	"call-scoring-go/internal/logger"
	"call-scoring-go/internal/types"
)

// APIKeyFunc resolves the decrypted LLM API key for a company. The key
// only exists in memory for the duration of one call.
type APIKeyFunc func(ctx context.Context, companyID string) (string, error)

// LLMScorer scores a call by rendering the dashboard type's prompt
// template and asking a chat-completions endpoint for one numeric
// field per KPI key.
type LLMScorer struct {
	cfg    config.LLMConfig
	apiKey APIKeyFunc
	client *http.Client
	log    *logrus.Entry
}

func NewLLMScorer(cfg config.LLMConfig, apiKey APIKeyFunc) *LLMScorer {
	return &LLMScorer{
		cfg:    cfg,
		apiKey: apiKey,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    logger.Component("llm-scorer"),
	}
}

func (s *LLMScorer) Name() string { return ScorerLLM }

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Score renders the prompt, invokes the LLM with retry/backoff and
// parses one numeric field per KPI key out of the response content.
func (s *LLMScorer) Score(ctx context.Context, call *types.Call, dt *types.DashboardType) (types.ScoreMap, error) {
	if dt.Profile == nil {
		return nil, apperr.ErrLLMNotConfigured
	}
	if s.cfg.MockMode {
		return s.mockScores(call, dt), nil
	}
	if s.cfg.APIURL == "" {
		return nil, apperr.Wrap(apperr.ErrLLMNotConfigured, "LLM_API_URL not set")
	}

	key, err := s.apiKey(ctx, call.CompanyID)
	if err != nil {
		return nil, err
	}

	profile := dt.Profile
	body, _ := json.Marshal(chatRequest{
		Model: profile.Model,
		Messages: []chatMessage{
			{Role: "system", Content: profile.SystemPrompt},
			{Role: "user", Content: RenderPrompt(profile.UserPrompt, call)},
		},
		Temperature: profile.Temperature,
		MaxTokens:   profile.MaxTokens,
	})

	url := strings.TrimSuffix(s.cfg.APIURL, "/") + "/v1/chat/completions"
	log := s.log.WithFields(logrus.Fields{
		"call_id":        call.ID,
		"dashboard_type": dt.InternalName,
		"model":          profile.Model,
	})

	var scores types.ScoreMap
	var lastErr error

	op := func() error {
		reqCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()

		req, _ := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+key)

		resp, err := s.client.Do(req)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				lastErr = apperr.Wrap(apperr.ErrLLMTimeout, err.Error())
			} else {
				lastErr = apperr.Wrap(apperr.ErrLLMTransport, err.Error())
			}
			log.WithError(err).Warn("llm request failed")
			return lastErr
		}
		defer resp.Body.Close()

		respBody, _ := io.ReadAll(resp.Body)
		log.WithField("http_status", resp.StatusCode).Debug("llm response received")

		if resp.StatusCode >= 500 {
			lastErr = apperr.Wrapf(apperr.ErrLLMTransport, "llm status %d", resp.StatusCode)
			return lastErr
		}
		if resp.StatusCode >= 400 {
			lastErr = apperr.Wrapf(apperr.ErrLLMTransport, "llm status %d: %s", resp.StatusCode, respBody)
			return backoff.Permanent(lastErr)
		}

		parsed, err := parseScores(respBody)
		if err != nil {
			lastErr = err
			return lastErr
		}
		scores = parsed
		lastErr = nil
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = s.cfg.MaxRetryTime
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, lastErr
	}
	return scores, nil
}

// mockScores keeps local development and tests offline: each KPI lands
// mid-range, tilted by the call's derived sentiment.
func (s *LLMScorer) mockScores(call *types.Call, dt *types.DashboardType) types.ScoreMap {
	tilt := (call.SentimentScore - 50) / 100 // -0.5..0.5
	out := types.ScoreMap{}
	for _, d := range dt.KPIs {
		span := d.MaxValue - d.MinValue
		out[d.Key] = d.MinValue + span/2 + span*tilt/2
	}
	return out
}

// parseScores extracts a JSON object of numeric KPI values from a
// chat-completions response, recovering a brace-matched substring when
// the model wraps its JSON in prose or markdown fences.
func parseScores(body []byte) (types.ScoreMap, error) {
	content := contentFromChoices(body)
	if content == "" {
		content = string(body)
	}
	raw := extractJSON(content)
	if raw == "" {
		return nil, apperr.Wrap(apperr.ErrLLMResponseInvalid, "no JSON object in llm output")
	}

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, apperr.Wrap(apperr.ErrLLMResponseInvalid, err.Error())
	}

	out := types.ScoreMap{}
	for k, v := range obj {
		switch n := v.(type) {
		case float64:
			out[k] = n
		case string:
			var f float64
			if _, err := fmt.Sscanf(n, "%f", &f); err == nil {
				out[k] = f
			}
		}
	}
	if len(out) == 0 {
		return nil, apperr.Wrap(apperr.ErrLLMResponseInvalid, "no numeric fields in llm output")
	}
	return out, nil
}

// contentFromChoices reads choices[0].message.content from an
// OpenAI-style response.
func contentFromChoices(body []byte) string {
	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Choices) == 0 {
		return ""
	}
	return parsed.Choices[0].Message.Content
}

// extractJSON finds the first balanced JSON object in a string,
// stripping common markdown fences first.
func extractJSON(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	for _, fence := range []string{"```json", "```yaml", "```text", "```", "`json", "`"} {
		s = strings.ReplaceAll(s, fence, "")
	}

	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return strings.TrimSpace(s[start : i+1])
			}
		}
	}
	return ""
}
