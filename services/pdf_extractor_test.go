package services

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExtractor(ocr OCREngine) *PDFExtractor {
	return NewPDFExtractor(ocr, ExtractorOptions{
		MinChars:    100,
		Languages:   []string{"fra", "eng"},
		OCRZoom:     2.0,
		PageWorkers: 2,
	}, nil)
}

func TestExtractTextThreshold(t *testing.T) {
	tests := []struct {
		name    string
		pages   []string
		wantOCR bool
	}{
		{"99 characters triggers OCR", []string{strings.Repeat("a", 99)}, true},
		{"100 characters keeps text layer", []string{strings.Repeat("a", 100)}, false},
		{"split across pages", []string{strings.Repeat("a", 60), strings.Repeat("b", 40)}, false},
		{"whitespace does not count", []string{"   " + strings.Repeat("a", 99) + "\n\n\t"}, true},
		{"no text layer", []string{"", ""}, true},
		{"multibyte characters counted once", []string{strings.Repeat("é", 100)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ocr := &fakeOCR{}
			result, err := newTestExtractor(ocr).ExtractText(context.Background(), &fakeDocument{pages: tt.pages})
			require.NoError(t, err)
			assert.Equal(t, tt.wantOCR, result.OCRUsed)
			if tt.wantOCR {
				assert.Equal(t, len(tt.pages), ocr.calls)
			} else {
				assert.Zero(t, ocr.calls)
				assert.Equal(t, strings.Join(tt.pages, ""), result.Text)
			}
		})
	}
}

func TestExtractTextOCRReplacesTextLayer(t *testing.T) {
	doc := &fakeDocument{pages: []string{"short", "", "bits"}}
	ocr := &fakeOCR{}

	result, err := newTestExtractor(ocr).ExtractText(context.Background(), doc)
	require.NoError(t, err)

	assert.True(t, result.OCRUsed)
	assert.Equal(t, "ocr:png-0\n\nocr:png-1\n\nocr:png-2\n\n", result.Text)
	assert.NotContains(t, result.Text, "short")
	assert.Equal(t, len(result.Text), result.CharCount)
	assert.Equal(t, []string{"fra", "eng"}, ocr.languages)
	for _, z := range doc.zooms {
		assert.Equal(t, 2.0, z)
	}
}

func TestExtractTextEmptyOCRIsNotAnError(t *testing.T) {
	ocr := &fakeOCR{text: func([]byte) string { return "" }}
	result, err := newTestExtractor(ocr).ExtractText(context.Background(), &fakeDocument{pages: []string{""}})
	require.NoError(t, err)
	assert.True(t, result.OCRUsed)
	assert.Equal(t, "", strings.TrimSpace(result.Text))
}

func TestExtractTextOCRFailure(t *testing.T) {
	_, err := newTestExtractor(&fakeOCR{err: errBoom}).ExtractText(context.Background(), &fakeDocument{pages: []string{""}})
	assert.ErrorIs(t, err, errBoom)

	_, err = newTestExtractor(&fakeOCR{}).ExtractText(context.Background(), &fakeDocument{pages: []string{""}, rasterErr: errBoom})
	assert.ErrorIs(t, err, errBoom)

	_, err = newTestExtractor(nil).ExtractText(context.Background(), &fakeDocument{pages: []string{""}})
	assert.Error(t, err)
}

func TestExtractPageImages(t *testing.T) {
	tests := []struct {
		pages int
		want  int
	}{
		{pages: 10, want: 3},
		{pages: 3, want: 3},
		{pages: 2, want: 2},
		{pages: 0, want: 0},
	}

	for _, tt := range tests {
		doc := &fakeDocument{pages: make([]string, tt.pages)}
		images, err := newTestExtractor(nil).ExtractPageImages(context.Background(), doc, 3, 1.5)
		require.NoError(t, err)
		assert.Len(t, images, tt.want)

		for i, img := range images {
			raw, err := base64.StdEncoding.DecodeString(img)
			require.NoError(t, err)
			assert.Equal(t, "png-"+string(rune('0'+i)), string(raw))
		}
		for _, z := range doc.zooms {
			assert.Equal(t, 1.5, z)
		}
	}
}
