package api

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"staylink/internal/metrics"
)

// Refresher trades the refresh cookie the server set at login for a new
// access token.
type Refresher struct {
	client *http.Client
	url    string
	logger zerolog.Logger
}

func NewRefresher(client *http.Client, refreshURL string, logger zerolog.Logger) *Refresher {
	return &Refresher{client: client, url: refreshURL, logger: logger}
}

// Refresh returns the new token, or "" when the refresh failed for any reason.
func (r *Refresher) Refresh(ctx context.Context) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, nil)
	if err != nil {
		r.logger.Error().Err(err).Msg("build refresh request")
		metrics.Refreshes.WithLabelValues("error").Inc()
		return ""
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warn().Err(err).Msg("refresh request failed")
		metrics.Refreshes.WithLabelValues("error").Inc()
		return ""
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		r.logger.Warn().Int("status", resp.StatusCode).Msg("refresh rejected")
		metrics.Refreshes.WithLabelValues("rejected").Inc()
		return ""
	}

	token := ExtractBearer(resp.Header.Get("Authorization"))
	if token == "" {
		r.logger.Warn().Msg("refresh response carried no token")
		metrics.Refreshes.WithLabelValues("rejected").Inc()
		return ""
	}

	metrics.Refreshes.WithLabelValues("ok").Inc()
	r.logger.Debug().Msg("access token refreshed")
	return token
}

// ExtractBearer accepts "Bearer <token>" or a bare token.
func ExtractBearer(header string) string {
	h := strings.TrimSpace(header)
	if strings.EqualFold(h, "bearer") {
		return ""
	}
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return h
}
