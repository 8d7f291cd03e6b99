package classify

import (
	"errors"

	"github.com/omnipost/publisher/internal/core/domain"
	"github.com/omnipost/publisher/internal/infra/httpx"
)

// ClassifySystemError maps a local failure (no platform response) to a
// canonical code. Errors produced by the httpx client carry a categorized
// FailureKind; the substring inspection below only runs for errors that
// bypassed that boundary.
func ClassifySystemError(err error) domain.ErrorCode {
	if err == nil {
		return domain.ErrUnknown
	}

	var te *httpx.TransportError
	if errors.As(err, &te) {
		switch te.Kind {
		case httpx.FailureTimeout:
			return domain.ErrTimeout
		case httpx.FailureConnection, httpx.FailureDNS:
			return domain.ErrNetwork
		case httpx.FailureTLS:
			return domain.ErrTLS
		default:
			return domain.ErrUnknown
		}
	}

	msg := err.Error()
	switch {
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return domain.ErrTimeout
	case containsAny(msg, "no such host", "connection refused", "connection reset", "dns", "network is unreachable"):
		return domain.ErrNetwork
	case containsAny(msg, "tls", "certificate", "x509"):
		return domain.ErrTLS
	default:
		return domain.ErrUnknown
	}
}
