// Package llm provides Explainer implementations backed by hosted text generation APIs.
package llm

import (
	"context"
	"errors"
	"net/http"

	"github.com/aristath/sentinel-insights/internal/domain"
)

// maxOutputTokens bounds every provider response
const maxOutputTokens = 600

// classifyStatus maps an HTTP status from a provider onto a generation error kind
func classifyStatus(op string, status int, err error) error {
	switch {
	case status == http.StatusTooManyRequests:
		return domain.NewGenerationError(domain.GenerationThrottled, op, err)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return domain.NewGenerationError(domain.GenerationMalformed, op, err)
	}
	return domain.NewGenerationError(domain.GenerationUnavailable, op, err)
}

// classifyTransport handles errors that carry no provider status
func classifyTransport(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		err = errors.Join(err, ctxErr)
	}
	return domain.NewGenerationError(domain.GenerationUnavailable, op, err)
}
