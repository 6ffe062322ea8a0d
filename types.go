package clubauth

import (
	"context"
	"fmt"
	"net/http"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// HTTPDoer is the subset of http.Client the package needs, so tests and
// instrumented clients can be injected.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Refresher exchanges the stored refresh token for a new access token.
// staleToken is the access token the caller last saw; implementations may
// skip the exchange when the session already carries a newer one.
type Refresher interface {
	Refresh(ctx context.Context, staleToken string) (string, error)
}

// ProfileFetcher retrieves the remote profile for the signed-in user.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context) (*Profile, error)
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] CLUBAUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] CLUBAUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] CLUBAUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] CLUBAUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
