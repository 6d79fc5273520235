// Package groq implements reply generation against the Groq chat-completions
// API.
package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/talkmate/talkmate-core/core/llms"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const completionsURL = "https://api.groq.com/openai/v1/chat/completions"

const defaultModel = "llama-3.3-70b-versatile"

type Client struct {
	apiKey string
	model  string

	httpClient *http.Client
}

type ClientOption func(*Client)

func WithModel(model string) ClientOption {
	return func(c *Client) { c.model = model }
}

func NewClient(opts ...ClientOption) (*Client, error) {
	apiKey, ok := os.LookupEnv("GROQ_API_KEY")
	if !ok {
		return nil, fmt.Errorf("groq api key not found")
	}

	client := &Client{
		apiKey: apiKey,
		model:  defaultModel,
		httpClient: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

type message struct {
	Role    messageRole `json:"role"`
	Content string      `json:"content"`
}

type messageRole string

const (
	messageRoleSystem    messageRole = "system"
	messageRoleUser      messageRole = "user"
	messageRoleAssistant messageRole = "assistant"
)

type requestBody struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
}

type responseBody struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Prompt sends instructions plus the ordered history and returns the reply
// content. Any transport failure, non-200 status or malformed body is
// returned as an error; the caller decides how to degrade.
func (c *Client) Prompt(ctx context.Context, instructions string, history []llms.Message) (string, error) {
	ctx, span := tracer.Start(ctx, "groq prompt", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.Int("prompt.history_length", len(history)))

	requestBodyBytes, err := json.Marshal(requestBody{
		Model:    c.model,
		Messages: toMessages(instructions, history),
	})
	if err != nil {
		return "", fmt.Errorf("error marshalling request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, completionsURL, bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return "", fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("non-OK HTTP status %d: %s", resp.StatusCode, string(body))
	}

	var parsedResponse responseBody
	if err := json.NewDecoder(resp.Body).Decode(&parsedResponse); err != nil {
		return "", fmt.Errorf("error unmarshalling response: %w", err)
	}
	if len(parsedResponse.Choices) == 0 {
		return "", fmt.Errorf("response contained no choices")
	}

	return strings.TrimSpace(parsedResponse.Choices[0].Message.Content), nil
}

func toMessages(instructions string, history []llms.Message) []message {
	messages := []message{}
	if instructions != "" {
		messages = append(messages, message{Role: messageRoleSystem, Content: instructions})
	}
	for _, historyMessage := range history {
		role := messageRoleUser
		if historyMessage.Role == llms.MessageRoleAssistant {
			role = messageRoleAssistant
		}
		messages = append(messages, message{Role: role, Content: historyMessage.Content})
	}
	return messages
}
