package models

// ExtractionResult is the text recovered from a document, either from its
// text layer or through OCR.
type ExtractionResult struct {
	Text      string
	OCRUsed   bool
	CharCount int
}

// TextExtraction is returned by /extract-text.
type TextExtraction struct {
	Filename string `json:"filename"`
	Pages    int    `json:"pages"`
	Chars    int    `json:"chars"`
	OCRUsed  bool   `json:"ocr_used"`
	Text     string `json:"text"`
}
