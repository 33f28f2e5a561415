package suggest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/glrules/internal/common"
	"github.com/Veraticus/glrules/internal/model"
	"github.com/Veraticus/glrules/internal/rules"
)

var _ rules.AISuggester = (*Suggester)(nil)

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }

func chatResponse(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		ID:     "chatcmpl-123",
		Object: "chat.completion",
		Model:  "gpt-4o-mini",
		Choices: []openai.ChatCompletionChoice{
			{
				Message: openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleAssistant,
					Content: content,
				},
				FinishReason: openai.FinishReasonStop,
			},
		},
	}
}

// newTestServer answers each call with the next handler; the last one repeats.
func newTestServer(t *testing.T, handlers ...http.HandlerFunc) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		n := int(atomic.AddInt32(&calls, 1)) - 1
		if n >= len(handlers) {
			n = len(handlers) - 1
		}
		handlers[n](w, r)
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func respondWith(content string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatResponse(content))
	}
}

func respondStatus(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"invalid_request_error"}}`))
	}
}

func newTestSuggester(t *testing.T, url string) *Suggester {
	t.Helper()
	s, err := New(Config{
		APIKey:        "test-key",
		BaseURL:       url,
		Timeout:       5 * time.Second,
		RetryDelay:    time.Millisecond,
		MaxRetryDelay: 5 * time.Millisecond,
		MaxRetries:    3,
	})
	require.NoError(t, err)
	return s
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, common.ErrMissingConfig)
}

func TestSuggest_Success(t *testing.T) {
	var captured openai.ChatCompletionRequest
	server, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		respondWith(`{"gl_code": " 6000-100 ", "confidence": 0.72, "reason": "office furniture"}`)(w, r)
	})
	s := newTestSuggester(t, server.URL)

	item := model.LineItem{VendorName: strPtr("Acme"), Amount: floatPtr(250), Description: "office chairs"}
	got, err := s.Suggest(context.Background(), item)
	require.NoError(t, err)

	assert.Equal(t, "6000-100", got.GLCode)
	assert.InDelta(t, 0.72, got.Confidence, 1e-9)
	assert.Equal(t, "office furniture", got.Reason)

	require.Len(t, captured.Messages, 2)
	assert.Contains(t, captured.Messages[1].Content, "Vendor: Acme")
	assert.Contains(t, captured.Messages[1].Content, "Amount: 250.00")
	assert.Equal(t, openai.GPT4oMini, captured.Model)
}

func TestSuggest_CachesIdenticalItems(t *testing.T) {
	server, calls := newTestServer(t, respondWith(`{"gl_code":"7000","confidence":0.5}`))
	s := newTestSuggester(t, server.URL)
	ctx := context.Background()

	item := model.LineItem{Description: "Software license"}
	_, err := s.Suggest(ctx, item)
	require.NoError(t, err)
	_, err = s.Suggest(ctx, model.LineItem{Description: "  software LICENSE "})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))

	_, err = s.Suggest(ctx, model.LineItem{Description: "hardware"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestSuggest_RetriesServerErrors(t *testing.T) {
	server, calls := newTestServer(t,
		respondStatus(http.StatusInternalServerError),
		respondWith(`{"gl_code":"7000","confidence":0.5}`),
	)
	s := newTestSuggester(t, server.URL)

	got, err := s.Suggest(context.Background(), model.LineItem{Description: "x"})
	require.NoError(t, err)
	assert.Equal(t, "7000", got.GLCode)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestSuggest_RetriesRateLimits(t *testing.T) {
	server, calls := newTestServer(t,
		respondStatus(http.StatusTooManyRequests),
		respondWith(`{"gl_code":"7000","confidence":0.5}`),
	)
	s := newTestSuggester(t, server.URL)

	_, err := s.Suggest(context.Background(), model.LineItem{Description: "x"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestSuggest_DoesNotRetryClientErrors(t *testing.T) {
	server, calls := newTestServer(t, respondStatus(http.StatusUnauthorized))
	s := newTestSuggester(t, server.URL)

	_, err := s.Suggest(context.Background(), model.LineItem{Description: "x"})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestSuggest_GivesUpAfterMaxRetries(t *testing.T) {
	server, calls := newTestServer(t, respondStatus(http.StatusBadGateway))
	s := newTestSuggester(t, server.URL)

	_, err := s.Suggest(context.Background(), model.LineItem{Description: "x"})
	assert.ErrorIs(t, err, common.ErrMaxRetries)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestSuggest_UnparseableResponseIsFinal(t *testing.T) {
	server, calls := newTestServer(t, respondWith("I think it's rent"))
	s := newTestSuggester(t, server.URL)

	_, err := s.Suggest(context.Background(), model.LineItem{Description: "x"})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestParseSuggestion(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    model.AISuggestion
		wantErr bool
	}{
		{name: "plain json", content: `{"gl_code":"6000","confidence":0.4}`, want: model.AISuggestion{GLCode: "6000", Confidence: 0.4}},
		{name: "fenced json", content: "```json\n{\"gl_code\":\"6000\",\"confidence\":0.4}\n```", want: model.AISuggestion{GLCode: "6000", Confidence: 0.4}},
		{name: "confidence clamped high", content: `{"gl_code":"6000","confidence":7}`, want: model.AISuggestion{GLCode: "6000", Confidence: 1}},
		{name: "confidence clamped low", content: `{"gl_code":"6000","confidence":-1}`, want: model.AISuggestion{GLCode: "6000"}},
		{name: "blank code", content: `{"gl_code":"  ","confidence":0.9}`, wantErr: true},
		{name: "not json", content: "rent", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSuggestion(tt.content)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildPrompt_OmitsMissingFields(t *testing.T) {
	prompt := BuildPrompt(model.LineItem{Description: " rent "})

	assert.Contains(t, prompt, "Description: rent\n")
	assert.False(t, strings.Contains(prompt, "Vendor:"))
	assert.False(t, strings.Contains(prompt, "Amount:"))
	assert.False(t, strings.Contains(prompt, "Date:"))
}
