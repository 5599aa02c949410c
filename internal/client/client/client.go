// Package client talks to the songletters HTTP API and bootstraps the
// CLI's local SQLite database.
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/songletters/internal/client/models"
	"github.com/dmitrijs2005/songletters/internal/common"
	"github.com/dmitrijs2005/songletters/internal/identity"
	"github.com/sethvargo/go-retry"
)

// Client is the API contract the CLI depends on.
type Client interface {
	Health(ctx context.Context) error
	Identity(ctx context.Context, sess *Session) (*models.IdentityResponse, error)
	ResetIdentity(ctx context.Context, sess *Session) error
	CreateLetter(ctx context.Context, sess *Session, in models.NewLetter) (*models.LetterResponse, error)
	GetLetter(ctx context.Context, linkID string) (*models.LetterResponse, error)
	Mine(ctx context.Context, sess *Session, page models.Page) (*models.ListResponse, error)
	Explore(ctx context.Context, req models.ExploreRequest) (*models.ListResponse, error)
	Merge(ctx context.Context, sess *Session, accountID string) (*models.MergeReport, error)
}

// Session carries the caller's credentials. Identity is the encoded
// identity JSON; the client replaces it whenever the server returns a
// newer one.
type Session struct {
	Token    string
	Identity []byte
}

type HTTPClient struct {
	baseURL     string
	httpClient  *http.Client
	fingerprint identity.Fingerprint
	userAgent   string
	retryDelay  time.Duration
}

func NewHTTPClient(baseURL string, timeout time.Duration, fp identity.Fingerprint, userAgent string) *HTTPClient {
	return &HTTPClient{
		baseURL:     strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient:  &http.Client{Timeout: timeout},
		fingerprint: fp,
		userAgent:   userAgent,
		retryDelay:  200 * time.Millisecond,
	}
}

func (c *HTTPClient) Health(ctx context.Context) error {
	return c.do(ctx, call{method: http.MethodGet, path: "/health"})
}

func (c *HTTPClient) Identity(ctx context.Context, sess *Session) (*models.IdentityResponse, error) {
	var out models.IdentityResponse
	if err := c.do(ctx, call{method: http.MethodGet, path: "/identity", sess: sess, out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) ResetIdentity(ctx context.Context, sess *Session) error {
	return c.do(ctx, call{method: http.MethodDelete, path: "/identity", sess: sess})
}

func (c *HTTPClient) CreateLetter(ctx context.Context, sess *Session, in models.NewLetter) (*models.LetterResponse, error) {
	var out models.LetterResponse
	if err := c.do(ctx, call{method: http.MethodPost, path: "/letters", sess: sess, body: in, out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) GetLetter(ctx context.Context, linkID string) (*models.LetterResponse, error) {
	var out models.LetterResponse
	if err := c.do(ctx, call{method: http.MethodGet, path: "/letters/" + url.PathEscape(linkID), out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Mine(ctx context.Context, sess *Session, page models.Page) (*models.ListResponse, error) {
	var out models.ListResponse
	err := c.do(ctx, call{method: http.MethodGet, path: "/letters/mine", query: pageValues(page), sess: sess, out: &out})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Explore(ctx context.Context, req models.ExploreRequest) (*models.ListResponse, error) {
	q := pageValues(req.Page)
	if req.SearchQuery != "" {
		q.Set("searchQuery", req.SearchQuery)
	}
	if req.SortBy != "" {
		q.Set("sortBy", req.SortBy)
	}
	if req.Artist != "" {
		q.Set("artist", req.Artist)
	}

	var out models.ListResponse
	if err := c.do(ctx, call{method: http.MethodGet, path: "/explore", query: q, out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Merge(ctx context.Context, sess *Session, accountID string) (*models.MergeReport, error) {
	var out models.MergeReport
	body := struct {
		AccountID string `json:"accountId,omitempty"`
	}{AccountID: accountID}
	if err := c.do(ctx, call{method: http.MethodPost, path: "/auth/merge", sess: sess, body: body, out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

func pageValues(p models.Page) url.Values {
	q := url.Values{}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Offset > 0 {
		q.Set("offset", strconv.Itoa(p.Offset))
	}
	return q
}

type call struct {
	method string
	path   string
	query  url.Values
	sess   *Session
	body   any
	out    any
}

// do sends one request. Reads are retried once when the server cannot be
// reached; writes are not, a duplicate letter is worse than an error.
func (c *HTTPClient) do(ctx context.Context, cl call) error {
	var payload []byte
	if cl.body != nil {
		var err error
		if payload, err = json.Marshal(cl.body); err != nil {
			return err
		}
	}

	retries := uint64(0)
	if cl.method == http.MethodGet {
		retries = 1
	}
	backoff := retry.WithMaxRetries(retries, retry.NewConstant(c.retryDelay))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := c.newRequest(ctx, cl, payload)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("%w: %v", ErrUnavailable, err))
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("%w: %v", ErrUnavailable, err))
		}

		if cl.sess != nil {
			cl.sess.absorb(resp.Header.Get(common.AnonymousIdentityHeaderName))
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return errorFor(resp.StatusCode, body)
		}
		if cl.out == nil || len(body) == 0 {
			return nil
		}
		return json.Unmarshal(body, cl.out)
	})
}

func (c *HTTPClient) newRequest(ctx context.Context, cl call, payload []byte) (*http.Request, error) {
	target := c.baseURL + cl.path
	if len(cl.query) > 0 {
		target += "?" + cl.query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, target, body)
	if err != nil {
		return nil, err
	}

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.fingerprint.Locale != "" {
		req.Header.Set("Accept-Language", c.fingerprint.Locale)
	}
	if c.fingerprint.Timezone != "" {
		req.Header.Set("X-Timezone", c.fingerprint.Timezone)
	}
	if c.fingerprint.ScreenClass != "" {
		req.Header.Set("X-Screen-Class", c.fingerprint.ScreenClass)
	}

	if cl.sess != nil {
		if cl.sess.Token != "" {
			req.Header.Set("Authorization", "Bearer "+cl.sess.Token)
		}
		if len(cl.sess.Identity) > 0 {
			req.Header.Set(common.AnonymousIdentityHeaderName, base64.RawURLEncoding.EncodeToString(cl.sess.Identity))
		}
	}
	return req, nil
}

// absorb keeps an identity the server echoed back. Anything undecodable is
// ignored so a misbehaving server cannot wipe the local identity.
func (s *Session) absorb(header string) {
	header = strings.TrimSpace(header)
	if header == "" {
		return
	}
	data, err := base64.RawURLEncoding.DecodeString(header)
	if err != nil {
		return
	}
	if _, err := identity.Decode(data); err != nil {
		return
	}
	s.Identity = data
}

// errorFor maps an error response onto the shared sentinels.
func errorFor(status int, body []byte) error {
	var e struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &e)

	var sentinel error
	switch {
	case status == http.StatusBadRequest:
		sentinel = common.ErrorValidation
	case status == http.StatusNotFound:
		sentinel = common.ErrorNotFound
	case status == http.StatusConflict:
		sentinel = common.ErrWriteConflict
	case status == http.StatusUnauthorized && e.Code == "token_expired":
		sentinel = common.ErrTokenExpired
	case status == http.StatusUnauthorized:
		sentinel = common.ErrorUnauthorized
	case e.Code == "merge_incomplete":
		sentinel = common.ErrMergeIncomplete
	case e.Code == "query_unsupported":
		sentinel = common.ErrQueryUnsupported
	case e.Code == "backend_unavailable":
		sentinel = common.ErrBackendUnavailable
	}

	apiErr := &APIError{StatusCode: status, Code: e.Code, Message: e.Message}
	if sentinel != nil {
		return errors.Join(sentinel, apiErr)
	}
	return apiErr
}
