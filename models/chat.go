package models

// ChatResult is returned by /analyze-pdf.
type ChatResult struct {
	Answer           string  `json:"answer"`
	PagesExtracted   int     `json:"pages_extracted"`
	CharsExtracted   int     `json:"chars_extracted"` // 0 in vision mode
	OCRUsed          bool    `json:"ocr_used"`
	VisionUsed       bool    `json:"vision_used"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	ResponseTime     float64 `json:"response_time"` // seconds, 2 decimals
}
