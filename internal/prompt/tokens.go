package prompt

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/s33g/discord-relay/internal/llm"
)

const (
	defaultEncoding = "cl100k_base"

	// perMessageOverhead covers role and separator tokens in the chat format
	perMessageOverhead = 4
	// replyPriming covers the assistant header the endpoint appends
	replyPriming = 3
)

func init() {
	// BPE ranks ship with the binary; nothing is downloaded at request time
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// encoderEntry loads one encoding at most once. A failed load is kept.
type encoderEntry struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
	err  error
}

// TokenCounter estimates prompt size for logging and metrics
type TokenCounter struct {
	load func(name string) (*tiktoken.Tiktoken, error)

	mu       sync.Mutex
	encoders map[string]*encoderEntry
}

// NewTokenCounter creates a new token counter
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{
		load:     tiktoken.GetEncoding,
		encoders: make(map[string]*encoderEntry),
	}
}

// Count returns the number of tokens in text for model
func (tc *TokenCounter) Count(text, model string) int {
	encoder, ok := tc.encoder(encodingFor(model))
	if !ok {
		return estimateTokens(text)
	}
	return len(encoder.Encode(text, nil, nil))
}

// CountMessages counts tokens for a request, including chat format overhead
func (tc *TokenCounter) CountMessages(messages []llm.Message, model string) int {
	total := replyPriming
	for _, msg := range messages {
		total += tc.Count(msg.Content, model) + perMessageOverhead
	}
	return total
}

func (tc *TokenCounter) encoder(name string) (*tiktoken.Tiktoken, bool) {
	tc.mu.Lock()
	entry, ok := tc.encoders[name]
	if !ok {
		entry = &encoderEntry{}
		tc.encoders[name] = entry
	}
	tc.mu.Unlock()

	entry.once.Do(func() {
		entry.enc, entry.err = tc.load(name)
	})
	if entry.err != nil {
		return nil, false
	}
	return entry.enc, true
}

// encodingFor maps a model name to a tiktoken encoding
func encodingFor(model string) string {
	if strings.HasPrefix(model, "gpt-4o") || strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") {
		return "o200k_base"
	}
	// GPT-3.5/4 and the OpenAI-compatible hosts (moonshot, etc.) are close enough to cl100k
	return defaultEncoding
}

// estimateTokens provides a rough token estimate (chars/4)
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}
