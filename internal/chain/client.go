// internal/chain/client.go
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jason-s-yu/nightstake/internal/game"
	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
)

// Client talks to the settlement relay that owns the staking contract. The relay signs and
// submits transactions; this process only instructs it.
type Client struct {
	baseURL    *url.URL
	http       *http.Client
	maxRetries uint64
	backoff    time.Duration
	logger     logrus.FieldLogger
}

var _ game.Settlement = (*Client)(nil)

// ErrRelay wraps a non-retryable response from the relay.
var ErrRelay = errors.New("settlement relay rejected request")

type createRequest struct {
	StakeAmount uint64 `json:"stakeAmount"`
	MinPlayers  int    `json:"minPlayers"`
}

type createResponse struct {
	MatchID string `json:"matchId"`
}

type payoutLine struct {
	Address string `json:"address"`
	Amount  uint64 `json:"amount"`
}

type settleRequest struct {
	Payouts []payoutLine `json:"payouts"`
}

type settleResponse struct {
	TxHash string `json:"txHash"`
}

type statusResponse struct {
	Status string `json:"status"`
}

// NewClient builds a relay client. maxRetries bounds the retries after the first attempt.
func NewClient(baseURL string, timeout time.Duration, maxRetries uint64, logger logrus.FieldLogger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse relay url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("relay url %q must be http or https", baseURL)
	}
	return &Client{
		baseURL:    u,
		http:       &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		backoff:    200 * time.Millisecond,
		logger:     logger.WithField("component", "chain"),
	}, nil
}

// CreateOnChainMatch registers a match on the staking contract and returns its chain id.
func (c *Client) CreateOnChainMatch(ctx context.Context, stake uint64, minPlayers int) (string, error) {
	var out createResponse
	err := c.do(ctx, http.MethodPost, "/matches", "", createRequest{StakeAmount: stake, MinPlayers: minPlayers}, &out)
	if err != nil {
		return "", err
	}
	if out.MatchID == "" {
		return "", fmt.Errorf("%w: empty match id", ErrRelay)
	}
	return out.MatchID, nil
}

// Settle distributes payouts. The chain match id doubles as the idempotency key so a retried
// request never pays twice.
func (c *Client) Settle(ctx context.Context, chainMatchID string, payouts []game.Payout) (string, error) {
	req := settleRequest{Payouts: make([]payoutLine, 0, len(payouts))}
	for _, p := range payouts {
		req.Payouts = append(req.Payouts, payoutLine{Address: p.Participant, Amount: p.TotalReceived})
	}
	var out settleResponse
	path := "/matches/" + url.PathEscape(chainMatchID) + "/settle"
	if err := c.do(ctx, http.MethodPost, path, chainMatchID, req, &out); err != nil {
		return "", err
	}
	return out.TxHash, nil
}

// MatchStatus reports the contract-side status of a match ("open", "started", "settled").
func (c *Client) MatchStatus(ctx context.Context, chainMatchID string) (string, error) {
	var out statusResponse
	if err := c.do(ctx, http.MethodGet, "/matches/"+url.PathEscape(chainMatchID), "", nil, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

// do sends one JSON request with exponential backoff. Network errors and 5xx responses are
// retried; anything else is returned as is.
func (c *Client) do(ctx context.Context, method, path, idempotencyKey string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
	}

	backoff, err := retry.NewExponential(c.backoff)
	if err != nil {
		return fmt.Errorf("create retry mechanism: %w", err)
	}
	backoff = retry.WithMaxRetries(c.maxRetries, backoff)

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if idempotencyKey != "" {
			req.Header.Set("Idempotency-Key", idempotencyKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			c.logger.WithField("attempt", attempt).Warnf("%s %s: %v", method, path, err)
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return retry.RetryableError(fmt.Errorf("read %s: %w", path, err))
		}
		switch {
		case resp.StatusCode >= 500:
			c.logger.WithField("attempt", attempt).Warnf("%s %s: relay status %d", method, path, resp.StatusCode)
			return retry.RetryableError(fmt.Errorf("relay status %d", resp.StatusCode))
		case resp.StatusCode >= 300:
			return fmt.Errorf("%w: %s %s: status %d: %s", ErrRelay, method, path, resp.StatusCode, strings.TrimSpace(string(data)))
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		return nil
	})
}
