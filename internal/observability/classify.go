package observability

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"

	"github.com/haasonsaas/relay/internal/budget"
	"github.com/haasonsaas/relay/internal/config"
	"github.com/haasonsaas/relay/internal/policy"
	"github.com/haasonsaas/relay/internal/providers"
)

// ErrorKind is the closed classification every caught error maps to.
type ErrorKind string

const (
	KindConfigMissingEnv ErrorKind = "config_missing_env"
	KindConfigMissingKey ErrorKind = "config_missing_key"
	KindNetwork          ErrorKind = "network"
	KindAuth             ErrorKind = "auth"
	KindModelNotFound    ErrorKind = "model_not_found"
	KindPolicy           ErrorKind = "policy"
	KindBudget           ErrorKind = "budget"
	KindUnknown          ErrorKind = "unknown"
)

// Classify maps an error to its kind. Nil maps to the empty kind.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, config.ErrMissingEnv) {
		return KindConfigMissingEnv
	}
	if errors.Is(err, providers.ErrMissingCredentials) {
		return KindConfigMissingKey
	}
	if policy.IsPolicyError(err) {
		return KindPolicy
	}
	if budget.IsBudgetError(err) {
		return KindBudget
	}

	var apiErr *providers.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == 401 || apiErr.Status == 403:
			return KindAuth
		case apiErr.Status == 404:
			return KindModelNotFound
		}
		if strings.Contains(strings.ToLower(apiErr.Message), "model") &&
			strings.Contains(strings.ToLower(apiErr.Message), "not found") {
			return KindModelNotFound
		}
		return KindUnknown
	}

	if isNetworkError(err) {
		return KindNetwork
	}
	return KindUnknown
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
