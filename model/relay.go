package model

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"ragchat/types"
)

// UpstreamError is a terminal non-2xx answer from the chat provider. The raw
// body is kept so the caller sees what the provider actually said. Never
// retried here.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream provider error: status %d: %s", e.Status, e.Body)
}

// Relay opens one streaming chat-completion exchange per call and forwards
// incremental fragments to the caller as they arrive. Instances are safe for
// concurrent use; each call owns its own connection.
type Relay struct {
	baseURL  string
	apiKey   string
	siteURL  string
	siteName string
	client   *http.Client
}

func NewRelay(baseURL, apiKey, siteURL, siteName string, timeout time.Duration) *Relay {
	return &Relay{
		baseURL:  baseURL,
		apiKey:   apiKey,
		siteURL:  siteURL,
		siteName: siteName,
		client:   &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model     string              `json:"model"`
	Messages  []types.ChatMessage `json:"messages"`
	MaxTokens int                 `json:"max_tokens"`
	Stream    bool                `json:"stream"`
}

// streamRecord covers both shapes providers answer with: incremental delta
// chunks and complete-message chunks. Normalized in fragment().
type streamRecord struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (r streamRecord) fragment() string {
	if len(r.Choices) == 0 {
		return ""
	}
	if r.Choices[0].Delta.Content != "" {
		return r.Choices[0].Delta.Content
	}
	return r.Choices[0].Message.Content
}

// StreamChat sends messages to the provider and calls emit for every text
// fragment, in arrival order, before reading the next record. An error from
// emit aborts the exchange and closes the upstream connection. Malformed
// records are skipped; fragments already emitted are never retracted.
func (r *Relay) StreamChat(ctx context.Context, messages []types.ChatMessage, model string, maxTokens int, emit func(string) error) error {
	body, err := json.Marshal(chatRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: maxTokens,
		Stream:    true,
	})
	if err != nil {
		return fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	if r.siteURL != "" {
		req.Header.Set("HTTP-Referer", r.siteURL)
	}
	if r.siteName != "" {
		req.Header.Set("X-Title", r.siteName)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		raw, _ := io.ReadAll(resp.Body)
		return &UpstreamError{Status: resp.StatusCode, Body: string(raw)}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		line = strings.TrimPrefix(line, "data: ")
		if line == "[DONE]" {
			return nil
		}

		var record streamRecord
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			log.Debug().Str("line", line).Msg("skipping malformed stream record")
			continue
		}

		frag := record.fragment()
		if frag == "" {
			continue
		}
		if err := emit(frag); err != nil {
			return fmt.Errorf("deliver fragment: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}
