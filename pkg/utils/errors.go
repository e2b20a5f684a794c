package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
)

// --- Sentinel Errors for Categorization ---
var (
	ErrRetryFailed      = errors.New("request failed after all retries") // Wraps the last underlying error
	ErrClientHTTPError  = errors.New("client HTTP error (4xx)")
	ErrServerHTTPError  = errors.New("server HTTP error (5xx)")
	ErrOtherHTTPError   = errors.New("other HTTP error (non-2xx)")
	ErrParsing          = errors.New("parsing error") // Wraps specific parsing error (URL, JSON, XML)
	ErrFilesystem       = errors.New("filesystem error")
	ErrDatabase         = errors.New("database error")
	ErrNotFound         = errors.New("not found")
	ErrSemaphoreTimeout = errors.New("timeout acquiring semaphore")
	ErrRequestCreation  = errors.New("failed to create HTTP request")
	ErrResponseBodyRead = errors.New("failed to read response body")
	ErrConfigValidation = errors.New("configuration validation error")

	// Browser side
	ErrBrowserLaunch = errors.New("failed to start browser session")
	ErrNavigation    = errors.New("page navigation failed")
	ErrProbe         = errors.New("in-page probe failed")

	// Oracle side. Blocked is never retried; malformed and network are transient.
	ErrOracleBlocked    = errors.New("oracle blocked the request (content safety)")
	ErrOracleMalformed  = errors.New("oracle returned malformed JSON")
	ErrOracleNetwork    = errors.New("oracle call failed")
	ErrOracleEmpty      = errors.New("oracle returned an empty response")
	ErrQueueClosed      = errors.New("oracle queue closed")
	ErrClassification   = errors.New("classification failed")
	ErrInvalidTargetURL = errors.New("invalid target URL")
	ErrScanFailed       = errors.New("scan failed")
)

// WrapErrorf wraps err with a formatted message. Returns nil when err is nil.
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// IsRetryableOracleError reports whether an oracle failure may be retried.
func IsRetryableOracleError(err error) bool {
	if err == nil || errors.Is(err, ErrOracleBlocked) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrOracleMalformed) || errors.Is(err, ErrOracleNetwork) || errors.Is(err, ErrOracleEmpty)
}

// retryCause returns the error ErrRetryFailed was joined with, for both
// fmt.Errorf("%w: %w", ...) and single-wrap forms.
func retryCause(err error) error {
	if multi, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range multi.Unwrap() {
			if !errors.Is(e, ErrRetryFailed) {
				return e
			}
		}
		return nil
	}
	if inner := errors.Unwrap(err); inner != nil && inner != ErrRetryFailed {
		return inner
	}
	return nil
}

// CategorizeError maps an error to a predefined category string for logging.
func CategorizeError(err error) string {
	if err == nil {
		return "None"
	}

	switch {
	case errors.Is(err, ErrOracleBlocked):
		return "Oracle_Blocked"
	case errors.Is(err, ErrRetryFailed):
		if underlying := retryCause(err); underlying != nil {
			if errors.Is(underlying, ErrServerHTTPError) {
				return "RetryFailed_HTTPServer"
			}
			if errors.Is(underlying, ErrClientHTTPError) {
				return "RetryFailed_HTTPClient"
			}
			if errors.Is(underlying, ErrOracleMalformed) {
				return "RetryFailed_OracleMalformed"
			}
			if errors.Is(underlying, ErrOracleNetwork) || errors.Is(underlying, ErrOracleEmpty) {
				return "RetryFailed_Oracle"
			}
			errMsg := underlying.Error()
			if strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "Timeout") || strings.Contains(errMsg, "deadline exceeded") {
				return "RetryFailed_NetworkTimeout"
			}
			if strings.Contains(errMsg, "connection refused") {
				return "RetryFailed_ConnectionRefused"
			}
			if strings.Contains(errMsg, "no such host") {
				return "RetryFailed_DNSLookup"
			}
			var netErr net.Error
			if errors.As(underlying, &netErr) && netErr.Timeout() {
				return "RetryFailed_NetworkTimeout"
			}
			return "RetryFailed_NetworkOther"
		}
		return "RetryFailed_Unknown"
	case errors.Is(err, ErrClientHTTPError):
		errMsg := err.Error()
		for _, code := range []string{"404", "403", "401", "429"} {
			if strings.Contains(errMsg, " "+code+" ") {
				return "HTTP_" + code
			}
		}
		return "HTTP_4xx"
	case errors.Is(err, ErrServerHTTPError):
		return "HTTP_5xx"
	case errors.Is(err, ErrOtherHTTPError):
		return "HTTP_OtherStatus"
	case errors.Is(err, ErrOracleMalformed):
		return "Oracle_Malformed"
	case errors.Is(err, ErrOracleNetwork), errors.Is(err, ErrOracleEmpty):
		return "Oracle_Network"
	case errors.Is(err, ErrQueueClosed):
		return "Oracle_QueueClosed"
	case errors.Is(err, ErrClassification):
		return "Oracle_Classification"
	case errors.Is(err, ErrBrowserLaunch):
		return "Browser_Launch"
	case errors.Is(err, ErrNavigation):
		return "Browser_Navigation"
	case errors.Is(err, ErrProbe):
		return "Browser_Probe"
	case errors.Is(err, ErrInvalidTargetURL):
		return "Input_InvalidURL"
	case errors.Is(err, ErrScanFailed):
		return "Scan_Failed"
	case errors.Is(err, ErrParsing):
		errMsg := err.Error()
		if strings.Contains(errMsg, "URL") {
			return "Content_ParsingURL"
		}
		if strings.Contains(errMsg, "JSON") {
			return "Content_ParsingJSON"
		}
		if strings.Contains(errMsg, "XML") {
			return "Content_ParsingXML"
		}
		return "Content_ParsingOther"
	case errors.Is(err, ErrFilesystem):
		if errors.Is(err, os.ErrPermission) {
			return "Filesystem_Permission"
		}
		if errors.Is(err, os.ErrNotExist) {
			return "Filesystem_NotExist"
		}
		return "Filesystem_Other"
	case errors.Is(err, ErrNotFound):
		return "Database_NotFound"
	case errors.Is(err, ErrDatabase):
		return "Database_Other"
	case errors.Is(err, ErrSemaphoreTimeout):
		return "Resource_SemaphoreTimeout"
	case errors.Is(err, ErrRequestCreation):
		return "Internal_RequestCreation"
	case errors.Is(err, ErrResponseBodyRead):
		return "Network_BodyRead"
	case errors.Is(err, ErrConfigValidation):
		return "Config_Validation"
	}

	if errors.Is(err, context.Canceled) {
		return "System_ContextCanceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		if strings.Contains(err.Error(), "semaphore") {
			return "Resource_SemaphoreTimeout"
		}
		return "System_ContextDeadlineExceeded"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Network_Timeout"
	}
	lowerErrMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lowerErrMsg, "timeout"):
		return "Network_TimeoutGeneric"
	case strings.Contains(lowerErrMsg, "connection refused"):
		return "Network_ConnectionRefused"
	case strings.Contains(lowerErrMsg, "no such host"):
		return "Network_DNSLookup"
	case strings.Contains(lowerErrMsg, "tls"), strings.Contains(lowerErrMsg, "certificate"):
		return "Network_TLS"
	case strings.Contains(lowerErrMsg, "reset by peer"):
		return "Network_ConnectionReset"
	}

	return "Unknown"
}
