// Copyright (c) 2026 Manhwari. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package upstream implements the rate-limited client for the external
catalogue API that Upstream-sourced manhwa are synchronised from.

Architecture:

  - Client: HTTP plumbing, rate limiting, session-token lifecycle, and
    error normalisation.
  - Transform: reduction of upstream wire records to the flattened Manga
    type the catalogue consumes.
  - Wire types: decode-only mirrors of the upstream JSON envelope.

Core Responsibilities:

  - Rate limiting: A global 5 req/s budget plus per-endpoint overlays for
    the login and random endpoints. Exhaustion fails fast with RateLimited
    and opens a 60 s cool-down window; callers are never queued.
  - Authentication: A 15-minute session token is fetched lazily, refreshed
    proactively after 14 minutes, and attached only to protected paths.
  - Error normalisation: Upstream error envelopes are mapped onto the
    application's error kinds so callers never see raw upstream payloads.
*/
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/taibuivan/manhwari/internal/platform/apperr"
)

// # Client Constants

const (
	// requestTimeout bounds every outbound call, including login.
	requestTimeout = 10 * time.Second

	// cooldownWindow is how long the client fails fast after the global
	// budget is exhausted.
	cooldownWindow = 60 * time.Second

	// tokenRefreshAfter is the proactive refresh threshold. The token lives
	// 15 minutes upstream; refreshing at 14 keeps a one-minute margin.
	tokenRefreshAfter = 14 * time.Minute

	// paginationCeiling is the deepest result window the upstream API serves.
	paginationCeiling = 10000

	// maxSearchLimit is the per-page clamp enforced upstream.
	maxSearchLimit = 100

	// defaultCoverBaseURL hosts cover images, separate from the API host.
	defaultCoverBaseURL = "https://uploads.mangadex.org"
)

// protectedPaths lists the endpoints that require a session token.
var protectedPaths = []*regexp.Regexp{
	regexp.MustCompile(`^/user`),
	regexp.MustCompile(`^/manga/draft`),
	regexp.MustCompile(`^/upload`),
	regexp.MustCompile(`^/chapter/[^/]+/read`),
}

// CoverQuality selects the resolution variant of a cover URL.
type CoverQuality string

const (
	CoverThumb  CoverQuality = ".256.jpg"
	CoverMedium CoverQuality = ".512.jpg"
	CoverLarge  CoverQuality = ""
)

// Config carries the connection settings for the upstream catalogue.
type Config struct {
	BaseURL   string
	UserAgent string
	Username  string
	Secret    string
}

// Client is a concurrency-safe upstream catalogue client. Construct with
// [NewClient]; the zero value is not usable.
type Client struct {
	baseURL      string
	coverBaseURL string
	userAgent    string
	username     string
	secret       string

	httpClient *http.Client
	logger     *slog.Logger

	// Limiters. The per-endpoint overlays are checked before the global one
	// so a login burst cannot silently drain the shared budget. Each limiter
	// bounds admissions over a trailing window, not a refill rate.
	globalLimiter *windowLimiter
	loginLimiter  *windowLimiter
	randomLimiter *windowLimiter

	cooldownMutex sync.Mutex
	coolingUntil  time.Time

	// Session token state. tokenMutex serialises refreshes so a burst of
	// 401s produces at most one outstanding login.
	tokenMutex    sync.Mutex
	sessionToken  string
	tokenIssuedAt time.Time
}

// NewClient creates an upstream client from the given configuration.
func NewClient(config Config, logger *slog.Logger) *Client {
	return &Client{
		baseURL:      strings.TrimRight(config.BaseURL, "/"),
		coverBaseURL: defaultCoverBaseURL,
		userAgent:    config.UserAgent,
		username:     config.Username,
		secret:       config.Secret,
		httpClient:   &http.Client{Timeout: requestTimeout},
		logger:       logger.With(slog.String("component", "upstream")),

		// 5 per second global. Login: 30 per hour. Random: 60 per minute.
		globalLimiter: newWindowLimiter(5, time.Second),
		loginLimiter:  newWindowLimiter(30, time.Hour),
		randomLimiter: newWindowLimiter(60, time.Minute),
	}
}

// # Search

// SearchQuery describes an upstream catalogue search.
type SearchQuery struct {
	Title          string
	Limit          int
	Offset         int
	ContentRatings []string
	Statuses       []string
	Demographics   []string
	IncludedTags   []string
	ExcludedTags   []string
}

/*
SearchManga runs a relevance-ordered search against the upstream catalogue.

# Parameters
  - context: Request-scoped context; cancellation aborts the outbound call.
  - query: Search terms and filters. Limit is clamped to 100.

# Returns
  - Transformed records and the upstream total count.
  - PaginationLimit when offset + limit exceeds the 10 000 result ceiling;
    the ceiling is checked before any rate-limit token is consumed.
*/
func (c *Client) SearchManga(context context.Context, query SearchQuery) ([]Manga, int, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	// The upstream API hard-rejects windows past 10 000 results.
	if query.Offset+limit > paginationCeiling {
		return nil, 0, apperr.PaginationLimit(query.Offset, limit, paginationCeiling)
	}

	values := url.Values{}
	if query.Title != "" {
		values.Set("title", query.Title)
	}
	values.Set("limit", strconv.Itoa(limit))
	values.Set("offset", strconv.Itoa(query.Offset))

	// Default to the family-safe bands unless the caller overrides.
	contentRatings := query.ContentRatings
	if len(contentRatings) == 0 {
		contentRatings = []string{"safe", "suggestive"}
	}
	for _, rating := range contentRatings {
		values.Add("contentRating[]", rating)
	}
	for _, status := range query.Statuses {
		values.Add("status[]", status)
	}
	for _, demographic := range query.Demographics {
		values.Add("publicationDemographic[]", demographic)
	}
	for _, tagID := range query.IncludedTags {
		values.Add("includedTags[]", tagID)
	}
	for _, tagID := range query.ExcludedTags {
		values.Add("excludedTags[]", tagID)
	}

	values.Set("order[relevance]", "desc")
	values.Add("includes[]", "cover_art")
	values.Add("includes[]", "author")
	values.Add("includes[]", "artist")

	var response mangaListResponse
	if err := c.do(context, http.MethodGet, "/manga", values, nil, &response); err != nil {
		return nil, 0, err
	}

	records := make([]Manga, 0, len(response.Data))
	for _, data := range response.Data {
		records = append(records, transformManga(data))
	}
	return records, response.Total, nil
}

// GetManga fetches a single record by its upstream identifier.
func (c *Client) GetManga(context context.Context, upstreamID string) (*Manga, error) {
	values := url.Values{}
	values.Add("includes[]", "cover_art")
	values.Add("includes[]", "author")
	values.Add("includes[]", "artist")

	var response mangaResponse
	if err := c.do(context, http.MethodGet, "/manga/"+upstreamID, values, nil, &response); err != nil {
		return nil, err
	}

	record := transformManga(response.Data)
	return &record, nil
}

// GetRandom fetches a random record. The endpoint carries its own
// 60-per-minute overlay on top of the global budget.
func (c *Client) GetRandom(context context.Context) (*Manga, error) {
	values := url.Values{}
	values.Add("includes[]", "cover_art")

	var response mangaResponse
	if err := c.do(context, http.MethodGet, "/manga/random", values, nil, &response); err != nil {
		return nil, err
	}

	record := transformManga(response.Data)
	return &record, nil
}

/*
ListTags fetches the upstream tag dictionary.

Failures are deliberately swallowed: the tag dictionary only improves genre
mapping for external search, so a degraded upstream returns an empty list
rather than failing the caller.
*/
func (c *Client) ListTags(context context.Context) []Tag {
	var response tagListResponse
	if err := c.do(context, http.MethodGet, "/manga/tag", nil, nil, &response); err != nil {
		c.logger.Warn("upstream_tag_fetch_failed", slog.String("error", err.Error()))
		return nil
	}

	tags := make([]Tag, 0, len(response.Data))
	for _, data := range response.Data {
		tags = append(tags, transformTag(data))
	}
	return tags
}

// CoverURL builds the public URL for a cover image at the given quality.
// An empty fileName yields an empty URL (no cover_art relationship).
func (c *Client) CoverURL(upstreamID, fileName string, quality CoverQuality) string {
	if fileName == "" {
		return ""
	}
	return fmt.Sprintf("%s/covers/%s/%s%s", c.coverBaseURL, upstreamID, fileName, quality)
}

// # Request Plumbing

/*
do executes one upstream request with rate limiting, authentication, and
error normalisation applied.

On a 401 to a protected path the cached token is discarded and the request
is retried exactly once with a fresh token; a second 401 surfaces as
Unauthorised.
*/
func (c *Client) do(context context.Context, method, path string, query url.Values, body any, out any) error {
	if err := c.reserve(path); err != nil {
		return err
	}

	protected := isProtectedPath(path)
	retried := false

	for {
		request, err := c.buildRequest(context, method, path, query, body)
		if err != nil {
			return apperr.ExternalAPI("Upstream request could not be built", err)
		}

		if protected {
			token, err := c.ensureToken(context)
			if err != nil {
				return err
			}
			request.Header.Set("Authorization", "Bearer "+token)
		}

		response, err := c.httpClient.Do(request)
		if err != nil {
			return apperr.ExternalAPI("Upstream request failed", err)
		}

		payload, err := io.ReadAll(io.LimitReader(response.Body, 4<<20))
		response.Body.Close()
		if err != nil {
			return apperr.ExternalAPI("Upstream response could not be read", err)
		}

		// One token refresh per request on a protected 401.
		if response.StatusCode == http.StatusUnauthorized && protected {
			if retried {
				return apperr.Unauthorized("Upstream rejected the session token")
			}
			retried = true
			c.invalidateToken()
			continue
		}

		if response.StatusCode < 200 || response.StatusCode >= 300 {
			return normalizeError(response.StatusCode, payload)
		}

		if out != nil {
			if err := json.Unmarshal(payload, out); err != nil {
				return apperr.ExternalAPI("Upstream response could not be decoded", err)
			}
		}
		return nil
	}
}

// buildRequest assembles the outbound HTTP request with shared headers.
func (c *Client) buildRequest(context context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	request, err := http.NewRequestWithContext(context, method, endpoint, reader)
	if err != nil {
		return nil, err
	}

	request.Header.Set("User-Agent", c.userAgent)
	request.Header.Set("Accept", "application/json")
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	return request, nil
}

/*
reserve consumes rate-limit tokens for the given path.

The per-endpoint overlay is checked first; exhausting either limiter fails
immediately with RateLimited. Exhausting the global budget additionally
opens the 60 s cool-down window during which every call fails fast.
*/
func (c *Client) reserve(path string) error {
	if overlay := c.endpointLimiter(path); overlay != nil && !overlay.Allow() {
		return apperr.RateLimited("Upstream endpoint rate limit exceeded")
	}

	c.cooldownMutex.Lock()
	defer c.cooldownMutex.Unlock()

	if time.Now().Before(c.coolingUntil) {
		return apperr.RateLimited("Upstream rate limit cooling down")
	}

	if !c.globalLimiter.Allow() {
		c.coolingUntil = time.Now().Add(cooldownWindow)
		c.logger.Warn("upstream_rate_limit_exhausted",
			slog.Time("cooling_until", c.coolingUntil),
		)
		return apperr.RateLimited("Upstream rate limit exceeded")
	}
	return nil
}

// endpointLimiter returns the overlay limiter for path, or nil.
func (c *Client) endpointLimiter(path string) *windowLimiter {
	switch {
	case strings.HasPrefix(path, "/auth/login"):
		return c.loginLimiter
	case strings.HasPrefix(path, "/manga/random"):
		return c.randomLimiter
	default:
		return nil
	}
}

// isProtectedPath reports whether path requires a session token.
func isProtectedPath(path string) bool {
	for _, pattern := range protectedPaths {
		if pattern.MatchString(path) {
			return true
		}
	}
	return false
}

// # Session Token

/*
ensureToken returns a session token, logging in or refreshing as needed.

The mutex is held across the login call, so concurrent callers that race a
refresh collapse onto a single outstanding login: the losers observe the
freshly issued token and return without logging in again.
*/
func (c *Client) ensureToken(context context.Context) (string, error) {
	c.tokenMutex.Lock()
	defer c.tokenMutex.Unlock()

	if c.sessionToken != "" && time.Since(c.tokenIssuedAt) < tokenRefreshAfter {
		return c.sessionToken, nil
	}

	if err := c.login(context); err != nil {
		return "", err
	}
	return c.sessionToken, nil
}

// invalidateToken drops the cached session token after a 401.
func (c *Client) invalidateToken() {
	c.tokenMutex.Lock()
	defer c.tokenMutex.Unlock()
	c.sessionToken = ""
	c.tokenIssuedAt = time.Time{}
}

// login exchanges the configured credentials for a fresh session token.
// Callers must hold tokenMutex.
func (c *Client) login(context context.Context) error {
	if err := c.reserve("/auth/login"); err != nil {
		return err
	}

	request, err := c.buildRequest(context, http.MethodPost, "/auth/login", nil, map[string]string{
		"username": c.username,
		"password": c.secret,
	})
	if err != nil {
		return apperr.ExternalAPI("Upstream login request could not be built", err)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return apperr.ExternalAPI("Upstream login failed", err)
	}
	defer response.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return apperr.ExternalAPI("Upstream login response could not be read", err)
	}

	if response.StatusCode != http.StatusOK {
		return normalizeError(response.StatusCode, payload)
	}

	var auth authResponse
	if err := json.Unmarshal(payload, &auth); err != nil {
		return apperr.ExternalAPI("Upstream login response could not be decoded", err)
	}
	if auth.Token.Session == "" {
		return apperr.Unauthorized("Upstream login returned no session token")
	}

	c.sessionToken = auth.Token.Session
	c.tokenIssuedAt = time.Now()
	c.logger.Info("upstream_session_refreshed")
	return nil
}

// # Error Normalisation

/*
normalizeError maps an upstream error envelope onto the application's error
kinds.

Known exception names take priority; anything else becomes ExternalAPI with
the upstream HTTP status preserved in the message.
*/
func normalizeError(status int, payload []byte) error {
	var envelope errorResponse
	_ = json.Unmarshal(payload, &envelope)

	for _, entry := range envelope.Errors {
		switch entry.Title {
		case "captcha_required_exception":
			return apperr.RateLimited("Upstream requires a captcha challenge")
		case "validation_exception":
			message := entry.Detail
			if message == "" {
				message = "Upstream rejected the request parameters"
			}
			return apperr.BadInput(message)
		case "entity_not_found_exception":
			return apperr.NotFound("Manga")
		}
	}

	return apperr.ExternalAPI(
		fmt.Sprintf("Upstream returned status %d", status),
		fmt.Errorf("upstream: status %d: %s", status, strings.TrimSpace(string(payload))),
	)
}
