package embedding

import (
	"errors"
	"net"
	"strings"

	syncdomain "vectorsync-backend/internal/sync/domain"
)

// isConnectionError checks if the error is a network/connection error
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// Provider clients often flatten the cause into the message
	errStr := strings.ToLower(err.Error())
	connectionIndicators := []string{
		"connection refused",
		"no such host",
		"network is unreachable",
		"connection reset",
		"timeout",
		"dial tcp",
		"eof",
	}
	for _, indicator := range connectionIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

// isQuotaError checks if the error indicates rate limiting or a server-side failure
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	quotaIndicators := []string{
		"429",
		"quota",
		"rate limit",
		"too many requests",
		"resource_exhausted",
		"resource exhausted",
		"500",
		"502",
		"503",
		"504",
		"unavailable",
	}
	for _, indicator := range quotaIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

// classify marks retryable provider failures as transient
func classify(err error) error {
	if isConnectionError(err) || isQuotaError(err) || syncdomain.IsTransient(err) {
		return syncdomain.TransientError(err)
	}
	return err
}
