package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/songletters/internal/common"
	"github.com/dmitrijs2005/songletters/internal/server/models"
	"github.com/dmitrijs2005/songletters/internal/server/query"
	"github.com/sethvargo/go-retry"
)

// HTTPError is a non-2xx answer from the proxy that does not map to a
// domain error.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("proxy http %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("proxy http %d: %s", e.StatusCode, e.Message)
}

// ProxyQueryResponse is the body of POST /internal/proxy/query.
type ProxyQueryResponse struct {
	Letters []*models.Letter `json:"letters"`
}

// ProxyReparentRequest is the body of POST /internal/proxy/reparent.
type ProxyReparentRequest struct {
	AccountID   string `json:"accountId"`
	AnonymousID string `json:"anonymousId"`
}

type ProxyReparentResponse struct {
	Reparented int64 `json:"reparented"`
}

// ProxyTier reaches the primary store through a peer server's internal
// proxy endpoints, for deployments where the direct database path is
// interfered with.
type ProxyTier struct {
	baseURL    string
	token      string
	httpClient *http.Client
	retryDelay time.Duration
}

func NewProxyTier(baseURL, token string, httpClient *http.Client) *ProxyTier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &ProxyTier{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      strings.TrimSpace(token),
		httpClient: httpClient,
		retryDelay: 100 * time.Millisecond,
	}
}

func (p *ProxyTier) Name() string { return TierProxy }

func (p *ProxyTier) Get(ctx context.Context, key string) (*models.Record, error) {
	var rec models.Record
	if err := p.doJSON(ctx, http.MethodGet, "/internal/proxy/letters/"+url.PathEscape(key), nil, &rec); err != nil {
		return nil, err
	}
	if rec.Letter == nil {
		return nil, fmt.Errorf("proxy returned an empty record for %s", key)
	}
	rec.Tier = TierProxy
	return &rec, nil
}

func (p *ProxyTier) Put(ctx context.Context, rec *models.Record) error {
	return p.doJSON(ctx, http.MethodPut, "/internal/proxy/letters/"+url.PathEscape(rec.Key), rec, nil)
}

// Query runs q on the peer. Rows the peer returns that do not satisfy q are
// dropped, so a peer that ignored a filter cannot expose private letters.
func (p *ProxyTier) Query(ctx context.Context, q query.Query) ([]*models.Letter, error) {
	var out ProxyQueryResponse
	if err := p.doJSON(ctx, http.MethodPost, "/internal/proxy/query", q, &out); err != nil {
		return nil, err
	}
	return q.Keep(out.Letters), nil
}

func (p *ProxyTier) Reparent(ctx context.Context, accountID, anonymousID string) (int64, error) {
	var out ProxyReparentResponse
	err := p.doJSON(ctx, http.MethodPost, "/internal/proxy/reparent",
		ProxyReparentRequest{AccountID: accountID, AnonymousID: anonymousID}, &out)
	if err != nil {
		return 0, err
	}
	return out.Reparented, nil
}

func (p *ProxyTier) IncrementViews(ctx context.Context, key string) error {
	return p.doJSON(ctx, http.MethodPost, "/internal/proxy/letters/"+url.PathEscape(key)+"/views", nil, nil)
}

// doJSON sends one request, retrying once on transport errors and on
// 502/503/504.
func (p *ProxyTier) doJSON(ctx context.Context, method, path string, body, out any) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}

	backoff := retry.WithMaxRetries(1, retry.NewConstant(p.retryDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, bodyReader)
		if err != nil {
			return err
		}
		req.Header.Set(common.ProxyTokenHeaderName, p.token)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return retry.RetryableError(readErr)
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil || len(payload) == 0 {
				return nil
			}
			return json.Unmarshal(payload, out)
		}

		var errPayload struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(payload, &errPayload)

		switch resp.StatusCode {
		case http.StatusNotFound:
			return common.ErrorNotFound
		case http.StatusConflict:
			return fmt.Errorf("%w: %s", common.ErrWriteConflict, errPayload.Message)
		case http.StatusBadRequest:
			return fmt.Errorf("%w: %s", common.ErrorValidation, errPayload.Message)
		}
		httpErr := &HTTPError{StatusCode: resp.StatusCode, Code: errPayload.Code, Message: errPayload.Message}
		switch resp.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return retry.RetryableError(httpErr)
		}
		return httpErr
	})
}
