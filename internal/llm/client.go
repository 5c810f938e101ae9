package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"github.com/s33g/discord-relay/internal/config"
	"github.com/s33g/discord-relay/internal/metrics"
	"github.com/s33g/discord-relay/internal/telemetry"
)

const (
	defaultBaseBackoff = 500 * time.Millisecond
	defaultMaxBackoff  = 4 * time.Second
)

// Client handles communication with the completion endpoint
type Client struct {
	api         openai.Client
	chat        config.ChatConfig
	sem         *semaphore.Weighted
	baseBackoff time.Duration
	maxBackoff  time.Duration
	logger      zerolog.Logger
}

type clientOptions struct {
	httpClient  *http.Client
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

// Option configures a Client
type Option func(*clientOptions)

// WithHTTPClient sets the HTTP client used for requests
func WithHTTPClient(hc *http.Client) Option {
	return func(o *clientOptions) {
		o.httpClient = hc
	}
}

// WithBackoff sets the retry backoff base and ceiling
func WithBackoff(base, max time.Duration) Option {
	return func(o *clientOptions) {
		o.baseBackoff = base
		o.maxBackoff = max
	}
}

// NewClient creates a completion client. The chat config is copied; later
// changes to the caller's value do not affect the client.
func NewClient(chat config.ChatConfig, logger zerolog.Logger, opts ...Option) (*Client, error) {
	if err := chat.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chat config: %w", err)
	}

	o := clientOptions{
		// No client-level timeout: the per-call context deadline covers retries too
		httpClient:  &http.Client{},
		baseBackoff: defaultBaseBackoff,
		maxBackoff:  defaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(&o)
	}

	chat.Stop = slices.Clone(chat.Stop)

	c := &Client{
		api: openai.NewClient(
			option.WithAPIKey(chat.APIKey),
			option.WithBaseURL(chat.APIAddress),
			option.WithHTTPClient(o.httpClient),
			option.WithMaxRetries(0),
		),
		chat:        chat,
		baseBackoff: o.baseBackoff,
		maxBackoff:  o.maxBackoff,
		logger:      logger,
	}
	if chat.MaxConcurrent > 0 {
		c.sem = semaphore.NewWeighted(int64(chat.MaxConcurrent))
	}

	return c, nil
}

// Model returns the configured model identifier
func (c *Client) Model() string {
	return c.chat.Model
}

// Complete sends messages and returns the first choice's content unchanged.
// Failures are returned as *Error.
func (c *Client) Complete(ctx context.Context, messages []Message) (content string, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.chat.Timeout())
	defer cancel()

	requestID := uuid.NewString()
	ctx, span := telemetry.StartSpan(ctx, "llm.complete",
		attribute.String("llm.model", c.chat.Model),
		attribute.String("request.id", requestID),
	)
	defer func() { telemetry.End(span, err) }()

	start := time.Now()
	content, err = c.complete(ctx, messages)
	if err != nil {
		var cerr *Error
		if errors.As(err, &cerr) {
			cerr.RequestID = requestID
		}
	}

	metrics.RecordCompletion(c.chat.Model, outcomeOf(err), time.Since(start).Seconds())

	c.logger.Debug().
		Str("request_id", requestID).
		Dur("duration", time.Since(start)).
		Bool("ok", err == nil).
		Msg("Completion finished")

	return content, err
}

func (c *Client) complete(ctx context.Context, messages []Message) (string, error) {
	if c.sem != nil {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return "", &Error{Kind: KindTransport, Err: fmt.Errorf("waiting for a completion slot: %w", err)}
		}
		defer c.sem.Release(1)
	}

	metrics.CompletionsInFlight.Inc()
	defer metrics.CompletionsInFlight.Dec()

	params := c.params(messages)

	var lastErr *Error
	for attempt := 0; attempt <= c.chat.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoff(attempt)
			c.logger.Warn().
				Err(lastErr.Err).
				Int("attempt", attempt).
				Dur("backoff", wait).
				Msg("Retrying completion after transport failure")
			metrics.RecordRetry(c.chat.Model)

			select {
			case <-ctx.Done():
				return "", lastErr
			case <-time.After(wait):
			}
		}

		completion, err := c.api.Chat.Completions.New(ctx, params)
		if err != nil {
			lastErr = classify(err)
			if lastErr.Kind == KindTransport && ctx.Err() == nil {
				continue
			}
			return "", lastErr
		}

		if len(completion.Choices) == 0 {
			return "", &Error{Kind: KindRemote, Err: ErrNoChoices}
		}

		metrics.RecordTokens(c.chat.Model, int(completion.Usage.PromptTokens), int(completion.Usage.CompletionTokens))

		return completion.Choices[0].Message.Content, nil
	}

	return "", lastErr
}

// Respond is Complete with the failure policy applied: errors are logged and
// replaced by the configured error message. It never returns an error.
func (c *Client) Respond(ctx context.Context, messages []Message) string {
	content, err := c.Complete(ctx, messages)
	if err == nil {
		return content
	}

	var cerr *Error
	if errors.As(err, &cerr) && cerr.Kind == KindRemote {
		c.logger.Error().
			Err(cerr.Err).
			Str("request_id", cerr.RequestID).
			Int("status", cerr.StatusCode).
			Str("body", cerr.Body).
			Msg("Completion endpoint returned an error")
	} else {
		event := c.logger.Error().Err(err)
		if cerr != nil {
			event = event.Str("request_id", cerr.RequestID)
		}
		event.Msg("Completion request failed")
	}

	return c.chat.ErrorMessage
}

func (c *Client) params(messages []Message) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:            shared.ChatModel(c.chat.Model),
		Messages:         make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
		Temperature:      openai.Float(c.chat.Temperature),
		MaxTokens:        openai.Int(int64(c.chat.MaxTokens)),
		TopP:             openai.Float(c.chat.TopP),
		FrequencyPenalty: openai.Float(c.chat.FrequencyPenalty),
		PresencePenalty:  openai.Float(c.chat.PresencePenalty),
	}

	// Some OpenAI-compatible hosts reject an empty stop array
	if len(c.chat.Stop) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: c.chat.Stop}
	}

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(msg.Content))
		case RoleAssistant:
			params.Messages = append(params.Messages, openai.AssistantMessage(msg.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(msg.Content))
		}
	}

	return params
}

// backoff returns an exponential delay with full jitter for the given retry attempt
func (c *Client) backoff(attempt int) time.Duration {
	ceiling := c.baseBackoff << (attempt - 1)
	if ceiling <= 0 || ceiling > c.maxBackoff {
		ceiling = c.maxBackoff
	}
	if ceiling <= 0 {
		return 0
	}
	return rand.N(ceiling) + 1
}

// classify maps an SDK error onto the failure taxonomy
func classify(err error) *Error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		body := apiErr.RawJSON()
		if body == "" {
			body = apiErr.Message
		}
		return &Error{Kind: KindRemote, StatusCode: apiErr.StatusCode, Body: body, Err: err}
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &Error{Kind: KindTransport, Err: err}
	}

	// The endpoint answered 2xx but the body could not be decoded
	return &Error{Kind: KindRemote, Err: fmt.Errorf("malformed response: %w", err)}
}

func outcomeOf(err error) string {
	switch KindOf(err) {
	case 0:
		return metrics.OutcomeSuccess
	case KindTransport:
		return metrics.OutcomeTransportError
	default:
		return metrics.OutcomeRemoteError
	}
}
