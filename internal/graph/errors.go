package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/microsoftgraph/msgraph-sdk-go/models/odataerrors"

	"meetingsnap/internal/common/logger"
)

// EnrichError adds the Graph error code and throttling guidance to err.
// Non-OData errors are returned unchanged.
func EnrichError(err error, operation string, l *slog.Logger) error {
	if err == nil {
		return nil
	}

	var odataErr *odataerrors.ODataError
	if !errors.As(err, &odataErr) {
		return err
	}

	info := odataErr.GetErrorEscaped()
	if info == nil {
		return err
	}

	code, message := "", ""
	if info.GetCode() != nil {
		code = *info.GetCode()
	}
	if info.GetMessage() != nil {
		message = *info.GetMessage()
	}

	switch code {
	case "TooManyRequests", "activityLimitReached":
		logger.LogWarn(l, "Graph API rate limit exceeded", "operation", operation, "code", code)

		retryAfter := ""
		if headers := odataErr.GetResponseHeaders(); headers != nil {
			if values := headers.Get("Retry-After"); len(values) > 0 {
				retryAfter = values[0]
			}
		}

		msg := fmt.Sprintf("rate limit exceeded during %s", operation)
		if retryAfter != "" {
			msg += fmt.Sprintf(" (retry after %s seconds)", retryAfter)
		}
		return fmt.Errorf("%s: %w", msg, err)

	case "ServiceUnavailable", "GatewayTimeout":
		logger.LogWarn(l, "Graph API service error", "operation", operation, "code", code, "message", message)
		return fmt.Errorf("service temporarily unavailable during %s (code: %s): %w", operation, code, err)

	case "ErrorItemNotFound", "ResourceNotFound":
		return fmt.Errorf("item not found during %s: %w", operation, err)
	}

	if code != "" {
		logger.LogDebug(l, "Graph API error", "operation", operation, "code", code, "message", message)
		return fmt.Errorf("%s failed (code: %s): %w", operation, code, err)
	}
	return err
}

// IsRetryableError reports whether a Graph call failed transiently:
// throttling, gateway and availability errors, or network failures.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
	}

	var odataErr *odataerrors.ODataError
	if errors.As(err, &odataErr) {
		switch odataErr.ResponseStatusCode {
		case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"timeout",
		"connection reset",
		"connection refused",
		"temporary failure",
		"try again",
		"no such host",
		"network is unreachable",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
