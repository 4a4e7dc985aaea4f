// Package providers defines the AI estimation boundary shared by the
// vision model backends.
package providers

import (
	"context"
	"strings"
)

// Config represents the configuration for a vision model provider.
type Config struct {
	Model       string
	Temperature float64
	Prompt      string
	ImageBytes  []byte
	ImageMIME   string
}

// Provider defines the interface for a vision model backend. DescribeFood
// returns the raw model text, which the analysis orchestrator parses and
// validates.
type Provider interface {
	DescribeFood(ctx context.Context, config Config) (string, error)
}

// EstimationPrompt instructs the model to return the analysis JSON schema
// and nothing else.
const EstimationPrompt = `You are a food recognition and portion estimation system.

Analyze the food in the attached photo and respond with ONLY a JSON object,
no markdown, no commentary, matching exactly this schema:

{
  "overall_food_item": "<short name of the dish or item>",
  "constituent_food_items": [
    {"name": "<ingredient or component>", "weight_grams": <integer>}
  ],
  "total_weight_grams": <integer>,
  "confidence_percentage": <integer 0-100>
}

Weights are estimates in grams. total_weight_grams should be the sum of the
constituent weights. If you cannot identify the food, use your best guess
and lower the confidence.`

// ExtractJSON strips markdown fences and surrounding prose from a model
// response, returning the first top-level JSON object found. Returns the
// input unchanged when no braces are present so the caller's JSON decoder
// produces the error.
func ExtractJSON(response string) string {
	s := strings.TrimSpace(response)
	if idx := strings.Index(s, "```"); idx != -1 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}
