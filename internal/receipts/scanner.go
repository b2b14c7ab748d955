// Package receipts extracts expense drafts from receipt photos with the
// Anthropic Messages API.
package receipts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"coparent/internal/core"
	"coparent/internal/log"
)

const (
	// MaxImageBytes is the largest upload accepted for scanning.
	MaxImageBytes = 5 << 20
)

var (
	ErrDisabled         = errors.New("receipt scanning is not configured")
	ErrUnsupportedMedia = errors.New("unsupported image type")
	ErrImageTooLarge    = errors.New("image too large")
	ErrUnreadable       = errors.New("receipt could not be read")
)

var mediaTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

const systemPrompt = `You read photographed receipts for a household expense tracker.
Reply with a single JSON object and nothing else:
{"amount": "<total paid, decimal, no currency sign>", "date": "<YYYY-MM-DD or empty>", "category": "<one short word>", "description": "<merchant or short summary>"}
If the image is not a receipt or the total is unreadable, reply {"error": "unreadable"}.`

// Draft is a scanned, unsaved expense.
type Draft struct {
	Amount      core.Money
	Date        core.Date
	Category    string
	Description string
}

type Scanner struct {
	enabled   bool
	model     string
	maxTokens int64
	client    anthropic.Client
	logger    *log.Logger
}

func NewScanner(apiKey, model string, logger *log.Logger) *Scanner {
	return newScanner(apiKey, model, logger, option.WithMaxRetries(2))
}

func newScanner(apiKey, model string, logger *log.Logger, opts ...option.RequestOption) *Scanner {
	if logger == nil {
		logger = log.Discard()
	}
	opts = append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(60 * time.Second),
	}, opts...)
	return &Scanner{
		enabled:   apiKey != "",
		model:     model,
		maxTokens: 400,
		client:    anthropic.NewClient(opts...),
		logger:    logger.WithComponent(log.ComponentReceipt),
	}
}

func (s *Scanner) Enabled() bool { return s.enabled }

// Scan sends the image to the model and parses its answer into a Draft.
func (s *Scanner) Scan(ctx context.Context, image []byte, mediaType string) (Draft, error) {
	if !s.Enabled() {
		return Draft{}, ErrDisabled
	}
	mediaType = strings.ToLower(strings.TrimSpace(strings.SplitN(mediaType, ";", 2)[0]))
	if !mediaTypes[mediaType] {
		return Draft{}, fmt.Errorf("%w: %q", ErrUnsupportedMedia, mediaType)
	}
	if len(image) == 0 || len(image) > MaxImageBytes {
		return Draft{}, fmt.Errorf("%w: %d bytes", ErrImageTooLarge, len(image))
	}

	msg, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: s.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64(mediaType, base64.StdEncoding.EncodeToString(image)),
				anthropic.NewTextBlock("Extract the expense from this receipt."),
			),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return Draft{}, fmt.Errorf("anthropic returned status %d: %w", apiErr.StatusCode, err)
		}
		return Draft{}, fmt.Errorf("anthropic request: %w", err)
	}
	s.logger.InfoContext(ctx, "Receipt scanned",
		"model", string(msg.Model),
		"input_tokens", msg.Usage.InputTokens,
		"output_tokens", msg.Usage.OutputTokens)

	for _, block := range msg.Content {
		if block.Type == "text" {
			return parseDraft(block.Text)
		}
	}
	return Draft{}, fmt.Errorf("%w: empty response", ErrUnreadable)
}

type draftJSON struct {
	Amount      json.RawMessage `json:"amount"`
	Date        string          `json:"date"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Error       string          `json:"error"`
}

// parseDraft reads the model's JSON reply. Stray prose around the object is
// ignored.
func parseDraft(text string) (Draft, error) {
	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return Draft{}, fmt.Errorf("%w: no JSON object in reply", ErrUnreadable)
	}
	var dj draftJSON
	if err := json.Unmarshal([]byte(text[start:end+1]), &dj); err != nil {
		return Draft{}, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if dj.Error != "" {
		return Draft{}, fmt.Errorf("%w: %s", ErrUnreadable, dj.Error)
	}

	amount := strings.Trim(string(dj.Amount), `"`)
	agorot, err := core.ParseDecimalToAgorot(amount)
	if err != nil {
		return Draft{}, fmt.Errorf("%w: amount %q", ErrUnreadable, amount)
	}

	// a date the model got wrong is dropped rather than failing the scan
	date, err := core.ParseDate(dj.Date)
	if err != nil {
		date = core.Date{}
	}

	return Draft{
		Amount:      core.Money{Agorot: agorot},
		Date:        date,
		Category:    strings.TrimSpace(dj.Category),
		Description: strings.TrimSpace(dj.Description),
	}, nil
}
