package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	xhtml "golang.org/x/net/html"
)

// chapterTextLimit caps how much chapter text is placed into the system
// prompt, in runes.
const chapterTextLimit = 8000

const systemPromptTemplate = `You are a reading companion. The user is reading the following book chapter. Your role is to ask thought-provoking comprehension questions, discuss themes, clarify difficult passages, and help the reader engage more deeply with the text. Keep responses concise and conversational.

--- CHAPTER TEXT ---
%s
--- END CHAPTER TEXT ---`

// ChatService talks to a local Ollama server and keeps per-(book, chapter)
// conversation history in memory for the life of the process.
type ChatService struct {
	baseURL string
	model   string
	client  *http.Client

	mu        sync.Mutex
	histories map[chatKey][]chatMessage
}

type chatKey struct {
	BookID  string
	Chapter int
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ollamaChatRequest is the request body for the Ollama /api/chat endpoint.
type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// ollamaChatResponse carries the relevant fields of the Ollama reply.
type ollamaChatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

// NewChatService creates a chat service against the given Ollama base URL
// (e.g. http://127.0.0.1:11434) using the given model.
func NewChatService(baseURL, model string) *ChatService {
	return &ChatService{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		model:     model,
		client:    &http.Client{Timeout: 2 * time.Minute},
		histories: make(map[chatKey][]chatMessage),
	}
}

// Ask appends the user message to the conversation for (bookID, chapter),
// sends the full history with a chapter-grounded system prompt to Ollama,
// records the reply, and returns it.
func (c *ChatService) Ask(ctx context.Context, bookID string, chapter int, chapterHTML, message string) (string, error) {
	key := chatKey{BookID: bookID, Chapter: chapter}
	system := chatMessage{
		Role:    "system",
		Content: fmt.Sprintf(systemPromptTemplate, truncateRunes(extractText(chapterHTML), chapterTextLimit)),
	}

	c.mu.Lock()
	history := append(c.histories[key], chatMessage{Role: "user", Content: message})
	c.histories[key] = history
	messages := append([]chatMessage{system}, history...)
	c.mu.Unlock()

	reply, err := c.send(ctx, messages)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.histories[key] = append(c.histories[key], chatMessage{Role: "assistant", Content: reply})
	c.mu.Unlock()

	return reply, nil
}

// Reset drops the conversation history for (bookID, chapter).
func (c *ChatService) Reset(bookID string, chapter int) {
	c.mu.Lock()
	delete(c.histories, chatKey{BookID: bookID, Chapter: chapter})
	c.mu.Unlock()
}

// send performs one non-streaming chat completion round trip.
func (c *ChatService) send(ctx context.Context, messages []chatMessage) (string, error) {
	body, err := json.Marshal(ollamaChatRequest{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat request failed: %s", resp.Status)
	}

	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	return out.Message.Content, nil
}

// extractText flattens chapter HTML into plain text for the system prompt.
func extractText(htmlStr string) string {
	doc, err := xhtml.Parse(strings.NewReader(htmlStr))
	if err != nil {
		return htmlStr
	}

	var sb strings.Builder
	var walk func(n *xhtml.Node)
	walk = func(n *xhtml.Node) {
		if n.Type == xhtml.TextNode {
			sb.WriteString(n.Data)
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
		if n.Type == xhtml.ElementNode {
			switch n.Data {
			case "p", "div", "br", "h1", "h2", "h3", "h4", "h5", "h6", "li":
				sb.WriteString("\n")
			}
		}
	}
	walk(doc)

	return strings.TrimSpace(sb.String())
}

// truncateRunes shortens s to at most n runes.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
