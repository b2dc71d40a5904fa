package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tgautier-sma/ai-llama/internal/ai"
	"github.com/tgautier-sma/ai-llama/internal/pdfdoc"
)

type fakeDocument struct {
	pages     []string
	rasterErr error

	mu         sync.Mutex
	rasterized []int
	zooms      []float64
	closed     bool
}

func (d *fakeDocument) PageCount() int { return len(d.pages) }

func (d *fakeDocument) PageText(i int) string { return d.pages[i] }

func (d *fakeDocument) Rasterize(ctx context.Context, i int, zoom float64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rasterized = append(d.rasterized, i)
	d.zooms = append(d.zooms, zoom)
	if d.rasterErr != nil {
		return nil, d.rasterErr
	}
	return []byte(fmt.Sprintf("png-%d", i)), nil
}

func (d *fakeDocument) Close() error {
	d.closed = true
	return nil
}

type fakeOpener struct {
	doc *fakeDocument
	err error
}

func (o *fakeOpener) Open(data []byte) (pdfdoc.Document, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.doc, nil
}

// fakeOCR returns "ocr:<png bytes>" for each page.
type fakeOCR struct {
	mu        sync.Mutex
	calls     int
	languages []string
	text      func(png []byte) string
	err       error
}

func (f *fakeOCR) Recognize(ctx context.Context, png []byte, languages []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.languages = languages
	if f.err != nil {
		return "", f.err
	}
	if f.text != nil {
		return f.text(png), nil
	}
	return "ocr:" + string(png), nil
}

type completerCall struct {
	endpoint string
	req      ai.ChatRequest
	timeout  time.Duration
}

type fakeCompleter struct {
	mu       sync.Mutex
	calls    []completerCall
	response string
	err      error
}

func (f *fakeCompleter) Complete(ctx context.Context, baseURL string, req ai.ChatRequest, timeout time.Duration) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, completerCall{endpoint: baseURL, req: req, timeout: timeout})
	if f.err != nil {
		return nil, f.err
	}
	if f.response == "" {
		return []byte(`{"choices":[{"message":{"content":"answer"}}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`), nil
	}
	return []byte(f.response), nil
}

var errBoom = errors.New("boom")
