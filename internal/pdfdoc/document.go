// Package pdfdoc opens uploaded PDFs: page count, per-page text layer and
// page rasterization.
package pdfdoc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/ledongthuc/pdf"

	"github.com/tgautier-sma/ai-llama/internal/logger"
)

// ErrMalformedDocument is returned when the bytes are not a parseable PDF.
var ErrMalformedDocument = errors.New("malformed PDF document")

// Document is an opened PDF. Pages are addressed by 0-based index.
type Document interface {
	PageCount() int
	// PageText returns the text layer of a page, or "" when it has none.
	PageText(index int) string
	// Rasterize renders a page to PNG at zoom times its natural size.
	Rasterize(ctx context.Context, index int, zoom float64) ([]byte, error)
	Close() error
}

// Rasterizer renders one page of a PDF file on disk to PNG bytes.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdfPath string, pageIndex int, zoom float64) ([]byte, error)
}

type Loader struct {
	rasterizer Rasterizer
}

func NewLoader(rasterizer Rasterizer) *Loader {
	return &Loader{rasterizer: rasterizer}
}

// Open parses data. Any parser failure, panics included, is reported as
// ErrMalformedDocument.
func (l *Loader) Open(data []byte) (doc Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = fmt.Errorf("%w: %v", ErrMalformedDocument, r)
		}
	}()

	if !HasPDFMagic(data) {
		return nil, fmt.Errorf("%w: missing %%PDF header", ErrMalformedDocument)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	pages := reader.NumPage()
	if pages < 0 {
		return nil, fmt.Errorf("%w: invalid page count %d", ErrMalformedDocument, pages)
	}

	return &document{
		data:       data,
		reader:     reader,
		pages:      pages,
		rasterizer: l.rasterizer,
	}, nil
}

// HasPDFMagic reports whether data starts with the %PDF signature.
func HasPDFMagic(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF"))
}

type document struct {
	data       []byte
	reader     *pdf.Reader
	pages      int
	rasterizer Rasterizer

	spill   sync.Once
	path    string
	pathErr error
}

func (d *document) PageCount() int {
	return d.pages
}

func (d *document) PageText(index int) (text string) {
	if index < 0 || index >= d.pages {
		return ""
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Warn("Failed to decode page text", "page", index+1, "panic", fmt.Sprint(r))
			text = ""
		}
	}()

	page := d.reader.Page(index + 1)
	if page.V.IsNull() {
		return ""
	}

	text, err := page.GetPlainText(nil)
	if err != nil {
		logger.Warn("Failed to extract text from page", "page", index+1, "error", err)
		return ""
	}
	return text
}

func (d *document) Rasterize(ctx context.Context, index int, zoom float64) ([]byte, error) {
	if index < 0 || index >= d.pages {
		return nil, fmt.Errorf("page index %d out of range [0,%d)", index, d.pages)
	}
	if zoom <= 0 {
		return nil, fmt.Errorf("zoom must be positive, got %v", zoom)
	}
	if d.rasterizer == nil {
		return nil, errors.New("no rasterizer configured")
	}

	path, err := d.spillToDisk()
	if err != nil {
		return nil, err
	}
	return d.rasterizer.Rasterize(ctx, path, index, zoom)
}

// spillToDisk writes the document to a temp file once; the rasterizer
// works on files.
func (d *document) spillToDisk() (string, error) {
	d.spill.Do(func() {
		f, err := os.CreateTemp("", "upload-*.pdf")
		if err != nil {
			d.pathErr = fmt.Errorf("failed to create temp file: %w", err)
			return
		}
		if _, err := f.Write(d.data); err != nil {
			f.Close()
			os.Remove(f.Name())
			d.pathErr = fmt.Errorf("failed to write temp file: %w", err)
			return
		}
		if err := f.Close(); err != nil {
			os.Remove(f.Name())
			d.pathErr = fmt.Errorf("failed to close temp file: %w", err)
			return
		}
		d.path = f.Name()
	})
	return d.path, d.pathErr
}

func (d *document) Close() error {
	if d.path == "" {
		return nil
	}
	err := os.Remove(d.path)
	d.path = ""
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
