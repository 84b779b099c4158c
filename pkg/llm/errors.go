package llm

import (
	"context"
	"errors"
	"net"

	"github.com/aretw0/llmfsm/pkg/domain"
)

// KindForStatus maps an HTTP status code from a model API to an error kind.
func KindForStatus(status int) domain.ClientErrorKind {
	switch {
	case status == 401 || status == 403:
		return domain.ClientAuth
	case status == 429:
		return domain.ClientRateLimit
	case status == 408 || status == 504:
		return domain.ClientTimeout
	case status == 400 || status == 422:
		return domain.ClientMalformed
	case status >= 500:
		return domain.ClientNetwork
	default:
		return domain.ClientUnknown
	}
}

// Classify wraps err as a *domain.ClientError, keeping an existing classification.
// Context errors map to timeout or canceled; net.Error to network.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var ce *domain.ClientError
	if errors.As(err, &ce) {
		return err
	}
	return &domain.ClientError{Kind: kindOf(err), Err: err}
}

// NewError builds a classified client error.
func NewError(kind domain.ClientErrorKind, err error) error {
	return &domain.ClientError{Kind: kind, Err: err}
}

func kindOf(err error) domain.ClientErrorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.ClientTimeout
	case errors.Is(err, context.Canceled):
		return domain.ClientCanceled
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return domain.ClientTimeout
		}
		return domain.ClientNetwork
	}
	return domain.ClientUnknown
}
