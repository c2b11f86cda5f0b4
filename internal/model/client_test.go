package model

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chatReply wraps content in a chat completions response body.
func chatReply(t *testing.T, content string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}, "finish_reason": "stop"},
		},
	})
	require.NoError(t, err)
	return body
}

func solidImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	img.Set(w/2, h/2, color.Black)
	return img
}

func testClient(url string, maxSide int) *Client {
	c := NewClient(Config{BaseURL: url, APIKey: "secret", Model: "test-model", MaxImageSide: maxSide})
	c.retryDelay = time.Millisecond
	c.rateLimitDelay = time.Millisecond
	return c
}

func TestLocateDiagram(t *testing.T) {
	var got chatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.Write(chatReply(t, "```json\n{\"bbox\": {\"x\": 10, \"y\": 20, \"width\": 100, \"height\": 50}, \"type\": \"graph\", \"confidence\": 88}\n```"))
	}))
	defer srv.Close()

	loc, err := testClient(srv.URL, 0).LocateDiagram(context.Background(), solidImage(400, 300), "Sketch the graph")
	require.NoError(t, err)
	require.NotNil(t, loc.BBox)
	assert.Equal(t, Box{X: 10, Y: 20, Width: 100, Height: 50}, *loc.BBox)
	assert.Equal(t, "graph", loc.Type)
	require.NotNil(t, loc.Confidence)
	assert.Equal(t, 88.0, *loc.Confidence)

	assert.Equal(t, "test-model", got.Model)
	require.Len(t, got.Messages, 1)
	require.Len(t, got.Messages[0].Content, 2)
	assert.Contains(t, got.Messages[0].Content[0].Text, "Sketch the graph")
	require.NotNil(t, got.Messages[0].Content[1].ImageURL)
	assert.True(t, strings.HasPrefix(got.Messages[0].Content[1].ImageURL.URL, "data:image/jpeg;base64,"))
}

func TestLocateDiagramRescalesBox(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(chatReply(t, `{"bbox": {"x": 100, "y": 100, "width": 200, "height": 200}, "type": "grid"}`))
	}))
	defer srv.Close()

	loc, err := testClient(srv.URL, 1000).LocateDiagram(context.Background(), solidImage(2000, 1000), "grid")
	require.NoError(t, err)
	assert.Equal(t, Box{X: 200, Y: 200, Width: 400, Height: 400}, *loc.BBox)
	assert.Nil(t, loc.Confidence)
}

func TestLocateDiagramNone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(chatReply(t, `{"bbox": null, "type": "none", "confidence": 0}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 0).LocateDiagram(context.Background(), solidImage(100, 100), "q")
	assert.True(t, errors.Is(err, ErrNoDiagram))
}

func TestLocateDiagramMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(chatReply(t, "I could not find it"))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 0).LocateDiagram(context.Background(), solidImage(100, 100), "q")
	assert.True(t, errors.Is(err, ErrMalformedResponse))
}

func TestExtractEnrichedBatchUsesInputPageNumbers(t *testing.T) {
	reply := `{"pages": [
		{"page_number": 1, "text": "first", "quiz": {"questions": [
			{"number": 1, "question": "Draw a triangle", "parts": [{"part": "(a)", "question_text": "x", "marks": 2}],
			 "enrichment": {"requires_diagram": true, "diagram_bbox": {"x": 5, "y": 5, "width": 50, "height": 50}}},
		]}},
		{"page_number": 1, "text": "second", "quiz": {"questions": []}},
	]}`
	var images int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatCompletionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		images = len(req.Messages[0].Content) - 1
		w.Write(chatReply(t, reply))
	}))
	defer srv.Close()

	pages := []PageImage{
		{Number: 6, Image: solidImage(100, 100)},
		{Number: 7, Image: solidImage(100, 100)},
	}
	out, err := testClient(srv.URL, 0).ExtractEnrichedBatch(context.Background(), pages)
	require.NoError(t, err)
	assert.Equal(t, 2, images)
	require.Len(t, out, 2)
	require.Contains(t, out, 6)
	require.Contains(t, out, 7)

	p6 := out[6]
	assert.Equal(t, 6, p6.PageNumber)
	assert.Equal(t, "first", p6.Text)
	require.Len(t, p6.Quiz.Questions, 1)
	q := p6.Quiz.Questions[0]
	assert.Equal(t, Label("1"), q.Number)
	assert.Equal(t, 2.0, q.TotalMarks())
	assert.True(t, q.Enrichment.RequiresDiagram)
	require.NotNil(t, q.Enrichment.DiagramBBox)
	assert.Equal(t, 50, q.Enrichment.DiagramBBox.BBox().Width)
	assert.Equal(t, "second", out[7].Text)
}

func TestExtractEnrichedBatchEmpty(t *testing.T) {
	out, err := NewClient(Config{}).ExtractEnrichedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestExtractTextAndQuiz(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(chatReply(t, `{"page_number": 3, "text": "Question 1\nSolve", "quiz": {"questions": [{"number": "1", "question": "Solve", "parts": []}]}}`))
	}))
	defer srv.Close()

	page, err := testClient(srv.URL, 0).ExtractTextAndQuiz(context.Background(), solidImage(50, 50))
	require.NoError(t, err)
	assert.Equal(t, "Question 1\nSolve", page.Text)
	require.Len(t, page.Quiz.Questions, 1)
	assert.Equal(t, "Solve", page.Quiz.Questions[0].Question)
}

func TestDoPostRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		case 2:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.Write(chatReply(t, `{"bbox": {"x": 1, "y": 1, "width": 2, "height": 2}}`))
		}
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 0).LocateDiagram(context.Background(), solidImage(10, 10), "q")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoPostDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "bad"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 0).LocateDiagram(context.Background(), solidImage(10, 10), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestDoPostGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := testClient(srv.URL, 0)
	c.maxRetries = 2
	_, err := c.LocateDiagram(context.Background(), solidImage(10, 10), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoPostHonoursCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := testClient(srv.URL, 0)
	c.retryDelay = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := c.LocateDiagram(ctx, solidImage(10, 10), "q")
	assert.True(t, errors.Is(err, context.Canceled))
}
