package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"

	dErrors "kyb/pkg/domain-errors"
)

const DefaultModel = "gpt-4o-mini"

const systemPrompt = `You read company registry filings and excerpts from chambers of commerce.
Return a JSON object with exactly two keys:
  "company_name": the registered legal name of the company, or null if not stated
  "registration_number": the chamber of commerce / company registration number, or null if not stated
Copy values exactly as printed. Never guess. Return only the JSON object.`

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// LLMEngine prompts an OpenAI compatible chat model. Text documents and the
// text layer of PDFs are sent inline; images are sent as data URLs to vision
// capable models.
type LLMEngine struct {
	client chatCompleter
	model  string
}

type LLMOption func(*LLMEngine)

func WithModel(model string) LLMOption {
	return func(e *LLMEngine) {
		if model != "" {
			e.model = model
		}
	}
}

// NewLLMEngine builds an engine against the OpenAI API, or any compatible
// server (Ollama, vLLM) when baseURL is set.
func NewLLMEngine(apiKey, baseURL string, opts ...LLMOption) *LLMEngine {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return newLLMEngine(openai.NewClientWithConfig(cfg), opts...)
}

func newLLMEngine(client chatCompleter, opts ...LLMOption) *LLMEngine {
	e := &LLMEngine{client: client, model: DefaultModel}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *LLMEngine) Name() string { return "llm:" + e.model }

func (e *LLMEngine) Extract(ctx context.Context, doc Document) (json.RawMessage, error) {
	user, err := userMessage(doc)
	if err != nil {
		return nil, err
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			user,
		},
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeExtraction, "chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return nil, dErrors.New(dErrors.CodeExtraction, "chat completion returned no choices")
	}
	return json.RawMessage(stripFence(resp.Choices[0].Message.Content)), nil
}

func userMessage(doc Document) (openai.ChatCompletionMessage, error) {
	mime := strings.ToLower(strings.TrimSpace(strings.SplitN(doc.MimeType, ";", 2)[0]))
	switch {
	case mime == "application/pdf" || bytes.HasPrefix(doc.Content, []byte("%PDF-")):
		text, err := pdfText(doc.Content)
		if err != nil {
			return openai.ChatCompletionMessage{}, err
		}
		return openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: "Filing (text layer of a PDF):\n\n" + text,
		}, nil
	case strings.HasPrefix(mime, "image/"):
		return openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: "Extract the facts from this filing."},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
					URL:    "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(doc.Content),
					Detail: openai.ImageURLDetailHigh,
				}},
			},
		}, nil
	case mime == "" || strings.HasPrefix(mime, "text/") || mime == "application/json" || mime == "application/xml":
		if !utf8.Valid(doc.Content) {
			return openai.ChatCompletionMessage{}, dErrors.New(dErrors.CodeExtraction, "document is not valid text")
		}
		return openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: "Filing:\n\n" + string(doc.Content),
		}, nil
	default:
		return openai.ChatCompletionMessage{}, dErrors.New(dErrors.CodeExtraction, "unsupported document type "+mime)
	}
}

// stripFence removes a markdown code fence some local models wrap JSON in.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
