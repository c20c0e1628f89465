package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/quailyquaily/guildmind/llm"
	"google.golang.org/genai"
)

const DefaultModel = "gemini-pro"

type Config struct {
	APIKey         string
	Model          string
	RequestTimeout time.Duration
}

type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Client struct {
	models         generator
	model          string
	requestTimeout time.Duration
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return newWithGenerator(client.Models, cfg), nil
}

func newWithGenerator(g generator, cfg Config) *Client {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	return &Client{models: g, model: model, requestTimeout: cfg.RequestTimeout}
}

func (c *Client) Model() string { return c.model }

func (c *Client) Chat(ctx context.Context, req llm.Request) (llm.Result, error) {
	start := time.Now()
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.model
	}
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		contents = append(contents, genai.NewContentFromText(m.Content, toRole(m.Role)))
	}
	var config *genai.GenerateContentConfig
	if system := strings.TrimSpace(req.System); system != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		}
	}

	resp, err := c.models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return llm.Result{}, fmt.Errorf("gemini: generate content: %w", err)
	}
	if resp == nil {
		return llm.Result{}, llm.ErrEmptyResponse
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		reason := strings.TrimSpace(fb.BlockReasonMessage)
		if reason == "" {
			reason = string(fb.BlockReason)
		}
		return llm.Result{}, &llm.BlockedError{Reason: reason}
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		if reason := blockedFinish(resp); reason != "" {
			return llm.Result{}, &llm.BlockedError{Reason: reason}
		}
		return llm.Result{}, llm.ErrEmptyResponse
	}

	out := llm.Result{Text: text, Duration: time.Since(start)}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = llm.Usage{
			InputTokens:  int(u.PromptTokenCount),
			OutputTokens: int(u.CandidatesTokenCount),
			TotalTokens:  int(u.TotalTokenCount),
		}
	}
	return out, nil
}

func toRole(role string) genai.Role {
	if strings.EqualFold(strings.TrimSpace(role), llm.RoleModel) {
		return genai.RoleModel
	}
	return genai.RoleUser
}

func blockedFinish(resp *genai.GenerateContentResponse) string {
	for _, cand := range resp.Candidates {
		if cand == nil {
			continue
		}
		switch cand.FinishReason {
		case genai.FinishReasonSafety,
			genai.FinishReasonProhibitedContent,
			genai.FinishReasonBlocklist,
			genai.FinishReasonSPII:
			return string(cand.FinishReason)
		}
	}
	return ""
}
