package model

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

const (
	// DefaultBaseURL is Gemini's OpenAI-compatible endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"
	DefaultModel   = "gemini-2.0-flash"
)

// Config configures a Client.
type Config struct {
	BaseURL string        `yaml:"base_url" json:"base_url"`
	APIKey  string        `yaml:"api_key" json:"-"`
	Model   string        `yaml:"model" json:"model"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// MaxImageSide caps the longer side of uploaded pages; 0 uploads them
	// at full resolution.
	MaxImageSide int     `yaml:"max_image_side" json:"max_image_side"`
	JPEGQuality  int     `yaml:"jpeg_quality" json:"jpeg_quality"`
	Temperature  float64 `yaml:"temperature" json:"temperature"`
}

// DefaultConfig returns the Gemini defaults without an API key.
func DefaultConfig() Config {
	return Config{
		BaseURL:      DefaultBaseURL,
		Model:        DefaultModel,
		Timeout:      120 * time.Second,
		MaxImageSide: 3072,
		JPEGQuality:  90,
	}
}

// Client is a chat completions client for vision models. It implements
// TextQuizExtractor, BatchEnricher and DiagramLocator.
type Client struct {
	cfg    Config
	client *http.Client

	maxRetries     int
	retryDelay     time.Duration
	rateLimitDelay time.Duration
}

// NewClient creates a client; zero fields of cfg take their defaults.
func NewClient(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = def.JPEGQuality
	}
	return &Client{
		cfg:            cfg,
		client:         &http.Client{Timeout: cfg.Timeout},
		maxRetries:     6,
		retryDelay:     2 * time.Second,
		rateLimitDelay: 5 * time.Second,
	}
}

var (
	_ TextQuizExtractor = (*Client)(nil)
	_ BatchEnricher     = (*Client)(nil)
	_ DiagramLocator    = (*Client)(nil)
)

// ExtractTextAndQuiz reads one page.
func (c *Client) ExtractTextAndQuiz(ctx context.Context, img image.Image) (*PageResult, error) {
	enc, err := encodeImage(img, c.cfg.MaxImageSide, c.cfg.JPEGQuality)
	if err != nil {
		return nil, err
	}
	reply, err := c.complete(ctx, textQuizPrompt, enc)
	if err != nil {
		return nil, errors.Wrap(err, "extract text and quiz")
	}
	var page PageResult
	if err := decodeReply(reply, &page); err != nil {
		return nil, errors.Wrap(err, "extract text and quiz")
	}
	rescaleQuiz(&page.Quiz, enc)
	return &page, nil
}

// ExtractEnrichedBatch reads several pages in one request. The model numbers
// pages on its own, often starting at 1 for every request, so the i-th page
// of the reply is assigned the number of the i-th input page. Extra pages in
// the reply are dropped.
func (c *Client) ExtractEnrichedBatch(ctx context.Context, pages []PageImage) (map[int]*PageResult, error) {
	if len(pages) == 0 {
		return map[int]*PageResult{}, nil
	}
	encoded := make([]*encodedImage, len(pages))
	for i, p := range pages {
		enc, err := encodeImage(p.Image, c.cfg.MaxImageSide, c.cfg.JPEGQuality)
		if err != nil {
			return nil, errors.Wrapf(err, "page %d", p.Number)
		}
		encoded[i] = enc
	}

	reply, err := c.complete(ctx, enrichedBatchPrompt, encoded...)
	if err != nil {
		return nil, errors.Wrap(err, "extract enriched batch")
	}
	var batch struct {
		Pages []PageResult `json:"pages"`
	}
	if err := decodeReply(reply, &batch); err != nil {
		return nil, errors.Wrap(err, "extract enriched batch")
	}

	out := make(map[int]*PageResult, len(pages))
	for i := range batch.Pages {
		if i >= len(pages) {
			slog.Warn("model: reply has more pages than requested", "requested", len(pages), "returned", len(batch.Pages))
			break
		}
		page := batch.Pages[i]
		page.PageNumber = pages[i].Number
		rescaleQuiz(&page.Quiz, encoded[i])
		out[page.PageNumber] = &page
	}
	return out, nil
}

// LocateDiagram asks for the box of the diagram matching questionContext. It
// returns ErrNoDiagram when the model reports none.
func (c *Client) LocateDiagram(ctx context.Context, img image.Image, questionContext string) (*Location, error) {
	enc, err := encodeImage(img, c.cfg.MaxImageSide, c.cfg.JPEGQuality)
	if err != nil {
		return nil, err
	}
	reply, err := c.complete(ctx, locatePrompt(questionContext), enc)
	if err != nil {
		return nil, errors.Wrap(err, "locate diagram")
	}
	var loc Location
	if err := decodeReply(reply, &loc); err != nil {
		return nil, errors.Wrap(err, "locate diagram")
	}
	if loc.BBox == nil || loc.BBox.Width <= 0 || loc.BBox.Height <= 0 {
		return nil, ErrNoDiagram
	}
	loc.BBox = enc.unscale(loc.BBox)
	return &loc, nil
}

func rescaleQuiz(q *Quiz, enc *encodedImage) {
	for i := range q.Questions {
		e := &q.Questions[i].Enrichment
		e.DiagramBBox = enc.unscale(e.DiagramBBox)
	}
}

// --- wire format ---

type message struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []message       `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// complete sends one user message made of prompt followed by the images and
// returns the text of the first choice.
func (c *Client) complete(ctx context.Context, prompt string, images ...*encodedImage) (string, error) {
	parts := []contentPart{{Type: "text", Text: prompt}}
	for _, img := range images {
		parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: img.dataURL}})
	}
	body := chatCompletionRequest{
		Model:          c.cfg.Model,
		Messages:       []message{{Role: "user", Content: parts}},
		Temperature:    c.cfg.Temperature,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	respBody, err := c.doPost(ctx, "/chat/completions", body)
	if err != nil {
		return "", err
	}
	var resp chatCompletionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", errors.Wrap(err, "decoding chat response")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	slog.Debug("model: completion",
		"model", c.cfg.Model,
		"images", len(images),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}

func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable ||
		code == http.StatusGatewayTimeout
}

func (c *Client) doPost(ctx context.Context, path string, body any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	url := c.cfg.BaseURL + path

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay * time.Duration(1<<(attempt-1))
			slog.Warn("model: retrying request",
				"url", url,
				"attempt", attempt,
				"delay", delay,
				"error", lastErr,
			)
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = errors.Wrapf(err, "request to %s failed", url)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = errors.Wrap(err, "reading response body")
			continue
		}
		if resp.StatusCode == http.StatusOK {
			return respBody, nil
		}

		lastErr = errors.Errorf("model API error %d: %s", resp.StatusCode, string(respBody))
		if !retryableStatusCode(resp.StatusCode) {
			return nil, lastErr
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			wait := c.rateLimitDelay * time.Duration(1<<attempt)
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
					if d := time.Duration(seconds) * time.Second; d > wait {
						wait = d
					}
				}
			}
			slog.Warn("model: rate limited, waiting before retry",
				"url", url,
				"attempt", attempt+1,
				"delay", wait,
			)
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
	}
	return nil, errors.Wrap(lastErr, "max retries exceeded")
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
