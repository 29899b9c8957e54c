package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"fitcoach_backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestAIServiceGenerateSendsChatCompletion(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello coach"}}]}`))
	}))
	defer srv.Close()

	svc := NewAIService(config.AIConfig{BaseURL: srv.URL + "/v1/", APIKey: "sk-test", Model: "gpt-4"})
	out, err := svc.Generate(context.Background(), "system text", "user prompt", GenerateOptions{
		Temperature: 0.7,
		MaxTokens:   1000,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello coach", out)

	assert.Equal(t, "gpt-4", gjson.GetBytes(body, "model").String())
	assert.Equal(t, 0.7, gjson.GetBytes(body, "temperature").Float())
	assert.EqualValues(t, 1000, gjson.GetBytes(body, "max_tokens").Int())
	assert.Equal(t, "system", gjson.GetBytes(body, "messages.0.role").String())
	assert.Equal(t, "system text", gjson.GetBytes(body, "messages.0.content").String())
	assert.Equal(t, "user prompt", gjson.GetBytes(body, "messages.1.content").String())
	assert.False(t, gjson.GetBytes(body, "response_format").Exists())
}

func TestAIServiceGenerateJSONMode(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{}"}}]}`))
	}))
	defer srv.Close()

	svc := NewAIService(config.AIConfig{BaseURL: srv.URL, Model: "gpt-4"})
	_, err := svc.Generate(context.Background(), "s", "p", GenerateOptions{Model: "gpt-4o", JSONResponse: true})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", gjson.GetBytes(body, "model").String())
	assert.Equal(t, "json_object", gjson.GetBytes(body, "response_format.type").String())
}

func TestAIServiceGenerateErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"api error message", http.StatusTooManyRequests, `{"error":{"message":"Rate limit reached"}}`, "AI API error (status 429): Rate limit reached"},
		{"raw error body", http.StatusBadGateway, `bad gateway`, "AI API error (status 502): bad gateway"},
		{"no choices", http.StatusOK, `{"choices":[]}`, "AI returned no choices"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			svc := NewAIService(config.AIConfig{BaseURL: srv.URL})
			_, err := svc.Generate(context.Background(), "s", "p", GenerateOptions{})
			require.Error(t, err)
			assert.Equal(t, tc.want, err.Error())
		})
	}
}

func TestAIServiceGenerateHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := NewAIService(config.AIConfig{BaseURL: srv.URL})
	_, err := svc.Generate(ctx, "s", "p", GenerateOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}
