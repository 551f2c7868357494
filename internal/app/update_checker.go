package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/skobkin/menulink/internal/clock"
	"golang.org/x/mod/semver"
)

const (
	DefaultReleaseQueryURL      = "https://git.skobk.in/api/v1/repos/skobkin/menulink/releases?draft=false&pre-release=false&limit=10"
	defaultUpdateRequestTimeout = 15 * time.Second
	defaultUpdateRetryDelay     = time.Second
	updateRetries               = 2
)

// Release is one published release of the client.
type Release struct {
	Version     string
	Notes       string
	URL         string
	PublishedAt time.Time
}

// UpdateCheck is the outcome of a single release query.
type UpdateCheck struct {
	Current   string
	Latest    Release
	Newer     []Release
	Available bool
	CheckedAt time.Time
}

type UpdateCheckerOptions struct {
	Endpoint   string
	HTTPClient *http.Client
	Logger     *slog.Logger
	Clock      clock.Clock
	RetryDelay time.Duration
}

// UpdateChecker asks the release API whether a newer build exists.
type UpdateChecker struct {
	endpoint   string
	client     *http.Client
	logger     *slog.Logger
	clk        clock.Clock
	retryDelay time.Duration
}

type releasePayload struct {
	TagName     string    `json:"tag_name"`
	Body        string    `json:"body"`
	HTMLURL     string    `json:"html_url"`
	PublishedAt time.Time `json:"published_at"`
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("unexpected status %d", e.code)
	}

	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

func NewUpdateChecker(opts UpdateCheckerOptions) *UpdateChecker {
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		endpoint = DefaultReleaseQueryURL
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultUpdateRequestTimeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.System()
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = defaultUpdateRetryDelay
	}

	return &UpdateChecker{endpoint: endpoint, client: client, logger: logger, clk: clk, retryDelay: delay}
}

// Check compares current against the published releases. Server errors are
// retried a couple of times; client errors and bad payloads are not.
func (c *UpdateChecker) Check(ctx context.Context, current string) (UpdateCheck, error) {
	var releases []Release
	op := func() error {
		var err error
		releases, err = c.fetchReleases(ctx)
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}

		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryDelay), updateRetries), ctx)
	notify := func(err error, wait time.Duration) {
		c.logger.Debug("release query failed, retrying", "error", err, "wait", wait)
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return UpdateCheck{}, fmt.Errorf("request releases: %w", err)
	}
	if len(releases) == 0 {
		return UpdateCheck{}, errors.New("release API returned no usable releases")
	}

	check := UpdateCheck{
		Current:   strings.TrimSpace(current),
		Latest:    releases[0],
		CheckedAt: c.clk.Now().UTC(),
	}
	for _, rel := range releases {
		if isReleaseNewer(check.Current, rel.Version) {
			check.Newer = append(check.Newer, rel)
		}
	}
	check.Available = isReleaseNewer(check.Current, check.Latest.Version)
	c.logger.Info("update check completed",
		"current_version", check.Current,
		"latest_version", check.Latest.Version,
		"update_available", check.Available,
	)

	return check, nil
}

var (
	errBadPayload = errors.New("bad release payload")
	errBadRequest = errors.New("bad release request")
)

// retryable is true for network failures and 5xx answers.
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= http.StatusInternalServerError
	}

	return !errors.Is(err, errBadPayload) && !errors.Is(err, errBadRequest)
}

func (c *UpdateChecker) fetchReleases(ctx context.Context) ([]Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}

	var payload []releasePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadPayload, err)
	}

	releases := make([]Release, 0, len(payload))
	for _, item := range payload {
		version := strings.TrimSpace(item.TagName)
		if version == "" {
			continue
		}
		releases = append(releases, Release{
			Version:     version,
			Notes:       strings.TrimSpace(item.Body),
			URL:         strings.TrimSpace(item.HTMLURL),
			PublishedAt: item.PublishedAt,
		})
	}

	return releases, nil
}

func isReleaseNewer(current, candidate string) bool {
	latest := normalizeSemver(candidate)
	if !semver.IsValid(latest) {
		return false
	}
	cur := normalizeSemver(current)
	if !semver.IsValid(cur) {
		// dev builds are older than anything published
		return true
	}

	return semver.Compare(cur, latest) < 0
}

func normalizeSemver(version string) string {
	trimmed := strings.TrimSpace(version)
	if trimmed == "" || strings.HasPrefix(trimmed, "v") {
		return trimmed
	}

	return "v" + trimmed
}
