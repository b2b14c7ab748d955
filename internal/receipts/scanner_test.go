package receipts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sentRequest is the part of the Messages request body the tests inspect.
type sentRequest struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	Messages  []struct {
		Role    string `json:"role"`
		Content []struct {
			Type   string `json:"type"`
			Source struct {
				Type      string `json:"type"`
				MediaType string `json:"media_type"`
				Data      string `json:"data"`
			} `json:"source"`
		} `json:"content"`
	} `json:"messages"`
}

func newTestScanner(t *testing.T, reply string, status int, seen *sentRequest) *Scanner {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		assert.NotEmpty(t, r.Header.Get("Anthropic-Version"))
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			json.NewEncoder(w).Encode(map[string]any{
				"type":  "error",
				"error": map[string]string{"type": "overloaded_error", "message": "overloaded"},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":          "msg_test",
			"type":        "message",
			"role":        "assistant",
			"model":       "test-model",
			"stop_reason": "end_turn",
			"content":     []map[string]string{{"type": "text", "text": reply}},
			"usage":       map[string]int{"input_tokens": 10, "output_tokens": 5},
		})
	}))
	t.Cleanup(srv.Close)

	return newScanner("test-key", "test-model", nil, option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
}

func TestScanParsesDraft(t *testing.T) {
	var seen sentRequest
	s := newTestScanner(t, `Here you go: {"amount": "123.40", "date": "2024-06-12", "category": "Food", "description": "Shufersal"}`, http.StatusOK, &seen)

	d, err := s.Scan(context.Background(), []byte{0xff, 0xd8, 0xff}, "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, int64(12340), d.Amount.Agorot)
	assert.Equal(t, "2024-06-12", d.Date.String())
	assert.Equal(t, "Food", d.Category)
	assert.Equal(t, "Shufersal", d.Description)

	assert.Equal(t, "test-model", seen.Model)
	require.Len(t, seen.Messages, 1)
	assert.Equal(t, "user", seen.Messages[0].Role)
	require.Len(t, seen.Messages[0].Content, 2)
	img := seen.Messages[0].Content[0]
	assert.Equal(t, "image", img.Type)
	assert.Equal(t, "base64", img.Source.Type)
	assert.Equal(t, "image/jpeg", img.Source.MediaType)
	assert.Equal(t, "/9j/", img.Source.Data)
}

func TestScanNumericAmountAndBadDate(t *testing.T) {
	s := newTestScanner(t, `{"amount": 59.9, "date": "12/06/2024", "category": "Pharmacy", "description": "Super-Pharm"}`, http.StatusOK, nil)
	d, err := s.Scan(context.Background(), []byte("png"), "image/png; charset=binary")
	require.NoError(t, err)
	assert.Equal(t, int64(5990), d.Amount.Agorot)
	assert.True(t, d.Date.IsZero())
}

func TestScanErrors(t *testing.T) {
	unreadable := newTestScanner(t, `{"error": "unreadable"}`, http.StatusOK, nil)
	_, err := unreadable.Scan(context.Background(), []byte("x"), "image/png")
	assert.ErrorIs(t, err, ErrUnreadable)

	upstream := newTestScanner(t, "overloaded", http.StatusServiceUnavailable, nil)
	_, err = upstream.Scan(context.Background(), []byte("x"), "image/png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")

	_, err = upstream.Scan(context.Background(), []byte("x"), "application/pdf")
	assert.ErrorIs(t, err, ErrUnsupportedMedia)

	_, err = upstream.Scan(context.Background(), make([]byte, MaxImageBytes+1), "image/png")
	assert.ErrorIs(t, err, ErrImageTooLarge)

	_, err = NewScanner("", "m", nil).Scan(context.Background(), []byte("x"), "image/png")
	assert.True(t, errors.Is(err, ErrDisabled))
}

func TestParseDraftRejectsBadAmounts(t *testing.T) {
	for _, reply := range []string{`{"amount": "0"}`, `{"amount": "-4"}`, `{"amount": ""}`, `no json here`} {
		_, err := parseDraft(reply)
		assert.ErrorIs(t, err, ErrUnreadable, reply)
	}
}
