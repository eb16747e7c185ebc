// Package translation implements the machine translation client (spec
// §4.6): a single Translate operation with inline protected-span
// preservation for dosage/time/numeric patterns, a 10s timeout, and
// provider-error classification driving a one-shot retry policy.
package translation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Result is the provider-agnostic output of a single Translate call.
type Result struct {
	TranslatedText   string
	DetectedLanguage string
	Confidence       float64
}

// ErrorKind classifies a provider failure so the client knows whether to
// retry or surface it immediately.
type ErrorKind int

const (
	ErrKindUnknown ErrorKind = iota
	// ErrKindQuotaExhausted is fatal for this utterance.
	ErrKindQuotaExhausted
	// ErrKindAuthInvalid is fatal for this utterance.
	ErrKindAuthInvalid
	// ErrKindNetwork covers connection failures and 5xx responses; retried once.
	ErrKindNetwork
	// ErrKindOther4xx (anything except auth/quota) is surfaced without retry.
	ErrKindOther4xx
)

// ProviderError is what a Provider implementation returns on failure; the
// client inspects Kind to decide retry vs surface.
type ProviderError struct {
	Kind ErrorKind
	Err  error
}

func (e *ProviderError) Error() string { return fmt.Sprintf("translation provider: %v", e.Err) }
func (e *ProviderError) Unwrap() error { return e.Err }

// Provider is the single upstream MT call this package wraps.
type Provider interface {
	Name() string
	Translate(ctx context.Context, text, sourceLang, targetLang string) (Result, error)
}

var errEmptyText = errors.New("translation: text must not be empty")

// Client wraps a Provider with timeout, retry, and protected-span handling.
type Client struct {
	provider Provider
	timeout  time.Duration
	logger   *zap.Logger
}

// New builds a Client. timeout defaults to the spec's 10s if zero.
func New(provider Provider, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{provider: provider, timeout: timeout, logger: logger}
}

// Translate converts text from sourceLang to targetLang, preserving
// dosage/time/numeric spans verbatim and retrying once on a
// network/5xx-classified failure (spec §4.6). It is never called with
// empty text by the orchestrator; Client still guards against it.
func (c *Client) Translate(ctx context.Context, text, sourceLang, targetLang string) (Result, error) {
	if text == "" {
		return Result{}, errEmptyText
	}

	protected := protectSpans(text)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := c.provider.Translate(ctx, protected, sourceLang, targetLang)
	if err != nil {
		var perr *ProviderError
		if errors.As(err, &perr) && perr.Kind == ErrKindNetwork {
			c.logger.Info("translation provider network error, retrying once",
				zap.String("provider", c.provider.Name()), zap.Error(err))
			result, err = c.provider.Translate(ctx, protected, sourceLang, targetLang)
		}
		if err != nil {
			return Result{}, err
		}
	}

	result.TranslatedText = unwrapSpans(result.TranslatedText)
	return result, nil
}
