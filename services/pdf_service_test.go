package services

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgautier-sma/ai-llama/internal/ai"
	"github.com/tgautier-sma/ai-llama/internal/pdfdoc"
	"github.com/tgautier-sma/ai-llama/internal/workerpool"
)

func testSettings(vision bool) Settings {
	return Settings{
		VisionMode:     vision,
		TextEndpoint:   "http://text-llm:8080",
		VisionEndpoint: "http://vision-llm:8080",
		TextTimeout:    120 * time.Second,
		VisionTimeout:  180 * time.Second,
		Temperature:    0.7,
		MaxPromptChars: 4000,
		VisionMaxPages: 3,
		VisionZoom:     1.5,
	}
}

func newTestService(vision bool, doc *fakeDocument, llm *fakeCompleter) *PDFService {
	return NewPDFService(testSettings(vision), &fakeOpener{doc: doc}, newTestExtractor(&fakeOCR{}), llm, workerpool.New(2), nil)
}

func TestAnalyzeTextMode(t *testing.T) {
	doc := &fakeDocument{pages: []string{strings.Repeat("a", 3000), strings.Repeat("b", 2000)}}
	llm := &fakeCompleter{}

	result, err := newTestService(false, doc, llm).Analyze(context.Background(), []byte("%PDF"), "Résume", 256)
	require.NoError(t, err)

	assert.Equal(t, "answer", result.Answer)
	assert.Equal(t, 2, result.PagesExtracted)
	assert.Equal(t, 4000+utf8.RuneCountInString(TruncationMarker), result.CharsExtracted)
	assert.False(t, result.OCRUsed)
	assert.False(t, result.VisionUsed)
	assert.Equal(t, 10, result.PromptTokens)
	assert.Equal(t, 5, result.CompletionTokens)
	assert.Equal(t, 15, result.TotalTokens)
	assert.GreaterOrEqual(t, result.ResponseTime, 0.0)
	assert.True(t, doc.closed)

	require.Len(t, llm.calls, 1)
	call := llm.calls[0]
	assert.Equal(t, "http://text-llm:8080", call.endpoint)
	assert.Equal(t, 120*time.Second, call.timeout)
	assert.Equal(t, 256, call.req.MaxTokens)
	assert.Equal(t, 0.7, call.req.Temperature)

	msg := call.req.Messages[0]
	assert.Nil(t, msg.Parts)
	assert.True(t, strings.HasPrefix(msg.Text, "Document PDF:\n---\n"+strings.Repeat("a", 3000)+strings.Repeat("b", 1000)+TruncationMarker))
	assert.True(t, strings.HasSuffix(msg.Text, "\n---\n\nQuestion: Résume\n\nRéponse:"))
}

func TestAnalyzeTextModeWithOCR(t *testing.T) {
	doc := &fakeDocument{pages: []string{""}}
	llm := &fakeCompleter{}

	result, err := newTestService(false, doc, llm).Analyze(context.Background(), nil, "q", 100)
	require.NoError(t, err)
	assert.True(t, result.OCRUsed)
	assert.Equal(t, 1, result.PagesExtracted)
	assert.Equal(t, utf8.RuneCountInString("ocr:png-0\n\n"), result.CharsExtracted)
	assert.NotEmpty(t, result.Answer)
}

func TestAnalyzeVisionMode(t *testing.T) {
	doc := &fakeDocument{pages: make([]string, 10)}
	llm := &fakeCompleter{}

	result, err := newTestService(true, doc, llm).Analyze(context.Background(), nil, "Que vois-tu ?", 512)
	require.NoError(t, err)

	assert.True(t, result.VisionUsed)
	assert.Zero(t, result.CharsExtracted)
	assert.False(t, result.OCRUsed)
	assert.Equal(t, 10, result.PagesExtracted)
	assert.Equal(t, []int{0, 1, 2}, doc.rasterized)

	require.Len(t, llm.calls, 1)
	call := llm.calls[0]
	assert.Equal(t, "http://vision-llm:8080", call.endpoint)
	assert.Equal(t, 180*time.Second, call.timeout)

	parts := call.req.Messages[0].Parts
	require.Len(t, parts, 4)
	assert.Equal(t, ai.PartTypeText, parts[0].Type)
	assert.Equal(t, "Que vois-tu ?", parts[0].Text)
	for _, p := range parts[1:] {
		assert.Equal(t, ai.PartTypeImageURL, p.Type)
		assert.True(t, strings.HasPrefix(p.ImageURL.URL, "data:image/png;base64,"))
	}
}

func TestAnalyzeVisionModeNoPages(t *testing.T) {
	llm := &fakeCompleter{}
	_, err := newTestService(true, &fakeDocument{}, llm).Analyze(context.Background(), nil, "q", 10)
	assert.ErrorIs(t, err, ErrNoImages)
	assert.Empty(t, llm.calls)
}

func TestAnalyzeEmptyExtraction(t *testing.T) {
	llm := &fakeCompleter{}
	svc := NewPDFService(testSettings(false), &fakeOpener{doc: &fakeDocument{pages: []string{""}}},
		newTestExtractor(&fakeOCR{text: func([]byte) string { return "  \n" }}), llm, workerpool.New(1), nil)

	_, err := svc.Analyze(context.Background(), nil, "q", 10)
	assert.ErrorIs(t, err, ErrEmptyExtraction)
	assert.Empty(t, llm.calls)
}

func TestAnalyzeMalformedDocument(t *testing.T) {
	llm := &fakeCompleter{}
	svc := NewPDFService(testSettings(false), &fakeOpener{err: pdfdoc.ErrMalformedDocument},
		newTestExtractor(&fakeOCR{}), llm, workerpool.New(1), nil)

	_, err := svc.Analyze(context.Background(), []byte("junk"), "q", 10)
	assert.ErrorIs(t, err, pdfdoc.ErrMalformedDocument)
	assert.Empty(t, llm.calls)
}

func TestAnalyzeUpstreamFailure(t *testing.T) {
	upstream := &ai.UpstreamError{StatusCode: 503, Body: "overloaded"}
	llm := &fakeCompleter{err: upstream}

	doc := &fakeDocument{pages: []string{strings.Repeat("t", 200)}}
	_, err := newTestService(false, doc, llm).Analyze(context.Background(), nil, "q", 10)

	var got *ai.UpstreamError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, "overloaded", got.Body)
	assert.Len(t, llm.calls, 1)
}

func TestAnalyzeMalformedResponse(t *testing.T) {
	llm := &fakeCompleter{response: `{"choices":[]}`}
	doc := &fakeDocument{pages: []string{strings.Repeat("t", 200)}}

	_, err := newTestService(false, doc, llm).Analyze(context.Background(), nil, "q", 10)
	assert.ErrorIs(t, err, ai.ErrMalformedResponse)
}

func TestExtractTextIsIdempotent(t *testing.T) {
	doc := &fakeDocument{pages: []string{strings.Repeat("word ", 30), "more"}}
	llm := &fakeCompleter{}
	svc := newTestService(false, doc, llm)

	first, pages, err := svc.ExtractText(context.Background(), nil)
	require.NoError(t, err)
	second, _, err := svc.ExtractText(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, pages)
	assert.Equal(t, first, second)
	assert.Equal(t, strings.Repeat("word ", 30)+"more", first.Text)
	assert.Empty(t, llm.calls)
}

func TestExtractTextIsNotTruncated(t *testing.T) {
	doc := &fakeDocument{pages: []string{strings.Repeat("z", 6000)}}
	result, _, err := newTestService(false, doc, &fakeCompleter{}).ExtractText(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 6000, result.CharCount)
}

func TestChatResultJSONShape(t *testing.T) {
	result, err := newTestService(false, &fakeDocument{pages: []string{strings.Repeat("a", 150)}}, &fakeCompleter{}).
		Analyze(context.Background(), nil, "q", 10)
	require.NoError(t, err)

	raw, err := json.Marshal(result)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	for _, key := range []string{"answer", "pages_extracted", "chars_extracted", "ocr_used", "vision_used",
		"prompt_tokens", "completion_tokens", "total_tokens", "response_time"} {
		assert.Contains(t, fields, key)
	}
}

func TestRoundSeconds(t *testing.T) {
	assert.Equal(t, 1.23, roundSeconds(1234*time.Millisecond))
	assert.Equal(t, 0.01, roundSeconds(6*time.Millisecond))
	assert.Equal(t, 0.0, roundSeconds(4*time.Millisecond))
}
