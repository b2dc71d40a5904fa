package services

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/tgautier-sma/ai-llama/internal/ai"
	"github.com/tgautier-sma/ai-llama/internal/config"
)

// TruncationMarker is appended when document text exceeds the prompt budget.
const TruncationMarker = "\n\n[... document tronqué ...]"

const imageDataURIPrefix = "data:image/png;base64,"

// TruncateText keeps text within maxChars characters, or cuts it to exactly
// maxChars and appends TruncationMarker.
func TruncateText(text string, maxChars int) string {
	if utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxChars]) + TruncationMarker
}

// PromptPayload is either a TextPrompt or a VisionPrompt.
type PromptPayload interface {
	Message() ai.ChatMessage
	isPromptPayload()
}

type TextPrompt struct {
	Prompt string
}

type VisionPrompt struct {
	Question string
	// Base64 PNG pages, 1 to config.MaxVisionPages of them.
	Images []string
}

func (TextPrompt) isPromptPayload()   {}
func (VisionPrompt) isPromptPayload() {}

func (p TextPrompt) Message() ai.ChatMessage {
	return ai.ChatMessage{Role: ai.RoleUser, Text: p.Prompt}
}

func (p VisionPrompt) Message() ai.ChatMessage {
	parts := make([]ai.ContentPart, 0, len(p.Images)+1)
	parts = append(parts, ai.ContentPart{Type: ai.PartTypeText, Text: p.Question})
	for _, img := range p.Images {
		parts = append(parts, ai.ContentPart{
			Type:     ai.PartTypeImageURL,
			ImageURL: &ai.ImageURL{URL: imageDataURIPrefix + img},
		})
	}
	return ai.ChatMessage{Role: ai.RoleUser, Parts: parts}
}

func BuildTextPrompt(documentText, question string) TextPrompt {
	return TextPrompt{
		Prompt: "Document PDF:\n---\n" + documentText + "\n---\n\nQuestion: " + question + "\n\nRéponse:",
	}
}

func BuildVisionPrompt(question string, images []string) (VisionPrompt, error) {
	if len(images) == 0 {
		return VisionPrompt{}, errors.New("vision prompt needs at least one image")
	}
	if len(images) > config.MaxVisionPages {
		return VisionPrompt{}, fmt.Errorf("vision prompt accepts at most %d images, got %d", config.MaxVisionPages, len(images))
	}
	return VisionPrompt{Question: question, Images: images}, nil
}

// NewChatRequest wraps a payload into the completion request body.
func NewChatRequest(payload PromptPayload, maxTokens int, temperature float64) ai.ChatRequest {
	return ai.ChatRequest{
		Messages:    []ai.ChatMessage{payload.Message()},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}
