package logger

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// RoundTripper logs every outbound request with its status and duration.
// The appid query parameter is redacted.
type RoundTripper struct {
	Logger zerolog.Logger
	Proxy  http.RoundTripper
}

func NewRoundTripper(logger zerolog.Logger, proxy http.RoundTripper) *RoundTripper {
	if proxy == nil {
		proxy = http.DefaultTransport
	}
	return &RoundTripper{
		Logger: logger.With().Str("component", "http_client").Logger(),
		Proxy:  proxy,
	}
}

func (l *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := l.Proxy.RoundTrip(req)
	duration := time.Since(start)

	if err != nil {
		l.Logger.Error().
			Ctx(req.Context()).
			Err(err).
			Str("method", req.Method).
			Str("url", redact(req)).
			Dur("duration", duration).
			Msg("HTTP request failed")
		return nil, err
	}

	l.Logger.Debug().
		Ctx(req.Context()).
		Str("method", req.Method).
		Str("url", redact(req)).
		Int("status_code", resp.StatusCode).
		Dur("duration", duration).
		Msg("HTTP request completed")

	return resp, nil
}

func redact(req *http.Request) string {
	u := *req.URL
	q := u.Query()
	if q.Has("appid") {
		q.Set("appid", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
