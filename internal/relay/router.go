// Package relay decides which inbound messages trigger a completion and
// prepares the outbound reply.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/s33g/discord-relay/internal/config"
	"github.com/s33g/discord-relay/internal/llm"
	"github.com/s33g/discord-relay/internal/metrics"
	"github.com/s33g/discord-relay/internal/ratelimit"
	"github.com/s33g/discord-relay/internal/render"
	"github.com/s33g/discord-relay/internal/telemetry"
)

// Completer answers a prompt. It never fails: errors become the configured error message.
type Completer interface {
	Respond(ctx context.Context, messages []llm.Message) string
}

// PromptBuilder turns user text into the request message sequence
type PromptBuilder interface {
	Build(text string) []llm.Message
}

// Renderer rasterizes a reply for picture mode
type Renderer interface {
	Render(ctx context.Context, text string) (*render.Image, error)
}

// Gate decides who may trigger completions
type Gate interface {
	Mentioned(ev Event) bool
	Permitted(ev Event) bool
}

// Limiter enforces per-user request quotas
type Limiter interface {
	CheckRateLimit(ctx context.Context, guildID, userID string, limits config.RateLimit) (*ratelimit.Result, error)
}

// TokenEstimator sizes a request for debug logging
type TokenEstimator interface {
	CountMessages(messages []llm.Message, model string) int
}

// Deps are the router's collaborators. Renderer, Gate, Limiter and Tokens are optional.
type Deps struct {
	Completer Completer
	Prompts   PromptBuilder
	Renderer  Renderer
	Gate      Gate
	Limiter   Limiter
	Tokens    TokenEstimator
}

// Router is the single dispatch point for inbound messages and the outbound send hook
type Router struct {
	chat   config.ChatConfig
	limits config.RateLimit
	deps   Deps
	logger zerolog.Logger
}

// New creates a router. The configuration values are copied.
func New(chat config.ChatConfig, limits config.RateLimit, deps Deps, logger zerolog.Logger) (*Router, error) {
	if deps.Completer == nil {
		return nil, errors.New("relay: completer is required")
	}
	if deps.Prompts == nil {
		return nil, errors.New("relay: prompt builder is required")
	}
	if chat.PictureMode && deps.Renderer == nil {
		return nil, errors.New("relay: picture mode requires a renderer")
	}

	return &Router{
		chat:   chat,
		limits: limits,
		deps:   deps,
		logger: logger,
	}, nil
}

// TriggerWord returns the command name
func (r *Router) TriggerWord() string {
	return r.chat.TriggerWord
}

// Dispatch routes an inbound message to at most one completion path.
// It reports false when the message is ignored.
func (r *Router) Dispatch(ctx context.Context, ev Event) (*Reply, bool) {
	if text, ok := r.commandText(ev.Content); ok {
		if text == "" {
			r.ignore(ev, "empty command")
			return nil, false
		}
		return r.Command(ctx, ev, text), true
	}

	if !r.chat.RespondToAll {
		r.ignore(ev, "middleware disabled")
		return nil, false
	}
	if strings.TrimSpace(ev.Content) == "" {
		r.ignore(ev, "empty message")
		return nil, false
	}
	if r.chat.RequireMention && (r.deps.Gate == nil || !r.deps.Gate.Mentioned(ev)) {
		r.ignore(ev, "not mentioned")
		return nil, false
	}

	return r.Middleware(ctx, ev), true
}

// Middleware answers a plain message with its full content as the user turn
func (r *Router) Middleware(ctx context.Context, ev Event) *Reply {
	return r.complete(ctx, ev, ev.Content, metrics.PathMiddleware)
}

// Command answers an explicit trigger-word invocation with text as the user turn
func (r *Router) Command(ctx context.Context, ev Event, text string) *Reply {
	return r.complete(ctx, ev, text, metrics.PathCommand)
}

func (r *Router) complete(ctx context.Context, ev Event, text, path string) *Reply {
	ctx, span := telemetry.StartSpan(ctx, "relay."+path,
		attribute.String("guild.id", ev.GuildID),
		attribute.String("channel.id", ev.ChannelID),
	)
	defer telemetry.End(span, nil)

	logger := r.logger.With().
		Str("path", path).
		Str("message_id", ev.ID).
		Str("user_id", ev.AuthorID).
		Logger()

	if r.deps.Gate != nil && !r.deps.Gate.Permitted(ev) {
		logger.Debug().Msg("Author lacks an allowed role")
		metrics.RecordDispatch(metrics.PathIgnored)
		return &Reply{Text: "You don't have permission to use this bot.", Origin: OriginSystem}
	}

	if reply := r.checkRateLimit(ctx, ev, logger); reply != nil {
		return reply
	}

	metrics.RecordDispatch(path)

	messages := r.deps.Prompts.Build(text)
	if r.deps.Tokens != nil {
		if e := logger.Debug(); e.Enabled() {
			e.Int("prompt_tokens", r.deps.Tokens.CountMessages(messages, r.chat.Model)).
				Msg("Sending completion request")
		}
	}

	return &Reply{
		Text:   r.deps.Completer.Respond(ctx, messages),
		Origin: OriginCompletion,
	}
}

func (r *Router) checkRateLimit(ctx context.Context, ev Event, logger zerolog.Logger) *Reply {
	if r.deps.Limiter == nil {
		return nil
	}

	result, err := r.deps.Limiter.CheckRateLimit(ctx, ev.GuildID, ev.AuthorID, r.limits)
	if err != nil {
		logger.Warn().Err(err).Msg("Rate limit check failed, allowing request")
		return nil
	}
	if result.Allowed {
		return nil
	}

	logger.Info().
		Str("limit", result.LimitType).
		Int("reset_seconds", result.SecondsToReset).
		Msg("Request rate limited")
	metrics.RecordDispatch(metrics.PathRateLimited)

	return &Reply{
		Text:   fmt.Sprintf("Slow down! You've hit the per-%s limit. Try again in %s.", result.LimitType, result.RetryAfter()),
		Origin: OriginSystem,
	}
}

// BeforeSend is the outbound hook. In picture mode a completion reply is
// rendered to an image; every other reply is left untouched.
func (r *Router) BeforeSend(ctx context.Context, reply *Reply) error {
	if reply == nil || !r.chat.PictureMode || reply.Origin != OriginCompletion || reply.Image != nil {
		return nil
	}

	img, err := r.deps.Renderer.Render(ctx, reply.Text)
	if err != nil {
		return err
	}

	reply.Image = img
	reply.Text = ""
	return nil
}

// Fallback is the reply delivered when BeforeSend fails
func (r *Router) Fallback() *Reply {
	return &Reply{Text: r.chat.ErrorMessage, Origin: OriginSystem}
}

// commandText reports whether content starts with the trigger word and returns
// the free text after it.
func (r *Router) commandText(content string) (string, bool) {
	content = strings.TrimLeftFunc(content, unicode.IsSpace)

	word, rest := content, ""
	if i := strings.IndexFunc(content, unicode.IsSpace); i >= 0 {
		word, rest = content[:i], content[i:]
	}
	if !strings.EqualFold(word, r.chat.TriggerWord) {
		return "", false
	}

	rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
	if strings.TrimSpace(rest) == "" {
		return "", true
	}
	return rest, true
}

func (r *Router) ignore(ev Event, reason string) {
	metrics.RecordDispatch(metrics.PathIgnored)
	r.logger.Debug().
		Str("message_id", ev.ID).
		Str("reason", reason).
		Msg("Message ignored")
}
