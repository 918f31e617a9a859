package backup

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/starford/bitacora/internal/apperr"
)

// classify turns a remote failure into a *apperr.SyncError when it is a
// network, timeout or authorization problem. Other errors are wrapped.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *apperr.SyncError
	if errors.As(err, &se) {
		return err
	}

	var (
		gerr *googleapi.Error
		nerr net.Error
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &apperr.SyncError{Kind: apperr.SyncTransient, Op: op, Err: err}
	case errors.As(err, &gerr):
		kind, ok := statusKind(gerr.Code, rateLimited(gerr))
		if !ok {
			return fmt.Errorf("backup: %s: %w", op, err)
		}
		return &apperr.SyncError{Kind: kind, Op: op, Detail: strings.TrimSpace(gerr.Body), Err: err}
	case errors.As(err, &nerr):
		return &apperr.SyncError{Kind: apperr.SyncTransient, Op: op, Err: err}
	}
	return fmt.Errorf("backup: %s: %w", op, err)
}

func statusKind(code int, limited bool) (apperr.SyncKind, bool) {
	switch {
	case code == http.StatusUnauthorized:
		return apperr.SyncExpired, true
	case code == http.StatusForbidden && !limited:
		return apperr.SyncRevoked, true
	case code == http.StatusForbidden, code == http.StatusTooManyRequests, code >= 500:
		return apperr.SyncTransient, true
	}
	return "", false
}

func rateLimited(e *googleapi.Error) bool {
	for _, item := range e.Errors {
		if strings.Contains(strings.ToLower(item.Reason), "ratelimit") {
			return true
		}
	}
	return false
}

// revokedCodes are OAuth error codes that need the user to reconnect.
var revokedCodes = map[string]bool{
	"invalid_grant":       true,
	"invalid_client":      true,
	"unauthorized_client": true,
	"access_denied":       true,
}

// tokenError maps a token endpoint failure. The provider's response body
// is kept verbatim in Detail.
func tokenError(op string, err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return &apperr.SyncError{Kind: apperr.SyncTransient, Op: op, Err: err}
	}
	kind := apperr.SyncTransient
	switch {
	case revokedCodes[re.ErrorCode]:
		kind = apperr.SyncRevoked
	case re.Response == nil:
	case re.Response.StatusCode == http.StatusTooManyRequests, re.Response.StatusCode == http.StatusRequestTimeout:
		// Throttled, the refresh token is still good.
	case re.Response.StatusCode >= 400 && re.Response.StatusCode < 500:
		kind = apperr.SyncRevoked
	}
	return &apperr.SyncError{Kind: kind, Op: op, Detail: strings.TrimSpace(string(re.Body)), Err: err}
}
