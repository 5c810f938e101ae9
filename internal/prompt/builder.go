// Package prompt builds the message sequence sent to the completion endpoint.
package prompt

import (
	"time"

	"github.com/s33g/discord-relay/internal/llm"
)

// Builder produces [system, user] message pairs
type Builder struct {
	persona string
	now     func() time.Time
}

// Option configures a Builder
type Option func(*Builder)

// WithClock overrides the wall clock used for the date line
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		b.now = now
	}
}

// NewBuilder creates a prompt builder for the given persona
func NewBuilder(persona string, opts ...Option) *Builder {
	b := &Builder{
		persona: persona,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SystemPrompt returns the persona followed by the current year and month.
// The date is read on every call.
func (b *Builder) SystemPrompt() string {
	return b.persona + "\nCurrent date: " + b.now().Format("2006-01")
}

// Build returns the request messages for text. Text is passed through unmodified.
func (b *Builder) Build(text string) []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: b.SystemPrompt()},
		{Role: llm.RoleUser, Content: text},
	}
}
