package anthropic

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// BuildCachedSystemBlocks constructs system content blocks with a cache
// breakpoint set to a 1-hour TTL. Pipeline nodes reuse the same system
// prompt across many leads, so the prompt prefix stays warm.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{
		{
			Text: text,
			CacheControl: &CacheControl{
				TTL: "1h",
			},
		},
	}
}

// GenerateJSON sends a message request and unmarshals the model's reply into
// out. The reply may be bare JSON or JSON wrapped in a markdown code fence;
// anything outside the outermost braces is ignored.
func GenerateJSON(ctx context.Context, client Client, req MessageRequest, out any) (TokenUsage, error) {
	resp, err := client.CreateMessage(ctx, req)
	if err != nil {
		return TokenUsage{}, err
	}

	text := resp.FirstText()
	if text == "" {
		return resp.Usage, eris.New("anthropic: empty response")
	}

	payload := ExtractJSON(text)
	if payload == "" {
		return resp.Usage, eris.Errorf("anthropic: no JSON object in response: %.120s", text)
	}

	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return resp.Usage, eris.Wrap(err, "anthropic: unmarshal response JSON")
	}
	return resp.Usage, nil
}

// ExtractJSON returns the outermost JSON object or array in text, stripping
// markdown code fences if present. Returns "" when no JSON is found.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx >= 0 {
			text = text[idx+1:]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return ""
	}
	closer := "}"
	if text[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(text, closer)
	if end <= start {
		return ""
	}
	return text[start : end+1]
}
