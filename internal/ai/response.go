package ai

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type completionEnvelope struct {
	Choices []struct {
		Message *struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage json.RawMessage `json:"usage"`
}

// InterpretResponse pulls the answer from choices[0].message.content and
// reads the usage counters, defaulting each missing one to 0.
func InterpretResponse(raw []byte) (string, Usage, error) {
	var env completionEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", Usage{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if len(env.Choices) == 0 {
		return "", Usage{}, fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}
	msg := env.Choices[0].Message
	if msg == nil {
		return "", Usage{}, fmt.Errorf("%w: choices[0] has no message", ErrMalformedResponse)
	}

	answer, err := decodeContent(msg.Content)
	if err != nil {
		return "", Usage{}, err
	}

	var counters map[string]any
	if len(env.Usage) > 0 {
		// Anything other than an object leaves every counter at 0.
		_ = json.Unmarshal(env.Usage, &counters)
	}

	usage := Usage{
		PromptTokens:     usageCounter(counters, "prompt_tokens"),
		CompletionTokens: usageCounter(counters, "completion_tokens"),
		TotalTokens:      usageCounter(counters, "total_tokens"),
	}
	return answer, usage, nil
}

// decodeContent accepts a string or an array of {type:"text", text} parts.
func decodeContent(raw json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "", fmt.Errorf("%w: message has no content", ErrMalformedResponse)
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil
	}

	var parts []ContentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", fmt.Errorf("%w: unsupported content type", ErrMalformedResponse)
	}

	var sb strings.Builder
	for _, part := range parts {
		if part.Type == PartTypeText {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), nil
}

func usageCounter(usage map[string]any, key string) int {
	switch v := usage[key].(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		return int(v)
	case string:
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return int(n)
		}
	}
	return 0
}
