package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

var (
	// ErrNotFound is returned when the requested block does not exist.
	ErrNotFound = errors.New("not found")

	// ErrProofFailed is returned when the registry rejects an ownership proof.
	// The returned error is an *APIError carrying the reason.
	ErrProofFailed = errors.New("ownership proof failed")
)

// APIError is a non-2xx response from the registry.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
	Reason  string `json:"reason,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("registry returned HTTP %d: %s", e.Status, e.Message)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

// Is maps status codes onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrProofFailed:
		return e.Status == http.StatusUnauthorized && e.Reason != ""
	}
	return false
}

// Block is a block as served by the registry.
type Block struct {
	Height       int             `json:"height"`
	Hash         string          `json:"hash"`
	PreviousHash *string         `json:"previous_hash"`
	Timestamp    int64           `json:"timestamp"`
	Body         string          `json:"body"`
	Data         json.RawMessage `json:"data"`
	Receipt      string          `json:"receipt,omitempty"`
}

// IsGenesis reports whether b is the genesis block.
func (b *Block) IsGenesis() bool { return b.PreviousHash == nil }

// Record decodes the owner and star of a non-genesis block into star.
func (b *Block) Record(star any) (owner string, err error) {
	if b.IsGenesis() {
		return "", errors.New("genesis block carries no record")
	}
	var rec struct {
		Owner string          `json:"owner"`
		Star  json.RawMessage `json:"star"`
	}
	if err := json.Unmarshal(b.Data, &rec); err != nil {
		return "", fmt.Errorf("decode record: %w", err)
	}
	if star != nil {
		if err := json.Unmarshal(rec.Star, star); err != nil {
			return "", fmt.Errorf("decode star: %w", err)
		}
	}
	return rec.Owner, nil
}

// Submission is the payload for SubmitStar.
type Submission struct {
	Address   string `json:"address"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
	Star      any    `json:"star"`
}

// Fault is one integrity violation reported by Validate.
type Fault struct {
	Kind    string `json:"kind"`
	Height  int    `json:"height"`
	Message string `json:"message"`
}

// ValidationResult is the outcome of a chain audit.
type ValidationResult struct {
	Valid  bool    `json:"valid"`
	Faults []Fault `json:"faults"`
}

// ChainInfo is the current height and tip of the chain.
type ChainInfo struct {
	Height int    `json:"height"`
	Codec  string `json:"codec"`
	Tip    Block  `json:"tip"`
}

// ReceiptStatus is the result of VerifyReceipt.
type ReceiptStatus struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Height    int       `json:"height"`
	BlockHash string    `json:"block_hash"`
	OnChain   bool      `json:"on_chain"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Client is the star registry SDK entry point.
type Client struct {
	base       string
	httpClient *http.Client
	blocks     *cache.Cache
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithCacheTTL enables in-memory caching of block lookups with the given TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) error {
		if ttl <= 0 {
			return fmt.Errorf("cache TTL must be positive, got %s", ttl)
		}
		c.blocks = cache.New(ttl, 2*ttl)
		return nil
	}
}

// New creates a new Client for the registry at base, e.g.
// "http://localhost:8000".
func New(base string, opts ...Option) (*Client, error) {
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("parse registry URL: %w", err)
	}
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// RequestChallenge asks the registry for the message address must sign.
func (c *Client) RequestChallenge(ctx context.Context, address string) (string, error) {
	var resp struct {
		Message string `json:"message"`
	}
	if err := c.call(ctx, http.MethodPost, "/requestValidation", map[string]string{"address": address}, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// SubmitStar submits a signed star. On proof failure the error matches
// ErrProofFailed and is an *APIError whose Reason names the cause.
func (c *Client) SubmitStar(ctx context.Context, sub Submission) (*Block, error) {
	var b Block
	if err := c.call(ctx, http.MethodPost, "/submitstar", sub, &b); err != nil {
		return nil, err
	}
	c.remember(&b)
	return &b, nil
}

// BlockByHeight fetches the block at height.
func (c *Client) BlockByHeight(ctx context.Context, height int) (*Block, error) {
	return c.block(ctx, "/block/height/"+strconv.Itoa(height))
}

// BlockByHash fetches the block with the given hash.
func (c *Client) BlockByHash(ctx context.Context, hash string) (*Block, error) {
	return c.block(ctx, "/block/hash/"+url.PathEscape(hash))
}

// StarsByOwner returns the stars registered by address in chain order.
func (c *Client) StarsByOwner(ctx context.Context, address string) ([]json.RawMessage, error) {
	var resp struct {
		Stars []json.RawMessage `json:"stars"`
	}
	if err := c.call(ctx, http.MethodGet, "/blocks/owner/"+url.PathEscape(address), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Stars, nil
}

// Validate asks the registry to audit the whole chain.
func (c *Client) Validate(ctx context.Context) (*ValidationResult, error) {
	var res ValidationResult
	if err := c.call(ctx, http.MethodGet, "/validate", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Chain returns the current height and tip block.
func (c *Client) Chain(ctx context.Context) (*ChainInfo, error) {
	var info ChainInfo
	if err := c.call(ctx, http.MethodGet, "/chain", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// VerifyReceipt checks a receipt returned by SubmitStar.
func (c *Client) VerifyReceipt(ctx context.Context, token string) (*ReceiptStatus, error) {
	var st ReceiptStatus
	if err := c.call(ctx, http.MethodPost, "/receipts/verify", map[string]string{"token": token}, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) block(ctx context.Context, path string) (*Block, error) {
	if c.blocks != nil {
		if v, ok := c.blocks.Get(path); ok {
			return v.(*Block), nil
		}
	}
	var b Block
	if err := c.call(ctx, http.MethodGet, path, nil, &b); err != nil {
		return nil, err
	}
	c.remember(&b)
	return &b, nil
}

// remember caches b under both of its lookup paths.
func (c *Client) remember(b *Block) {
	if c.blocks == nil {
		return
	}
	c.blocks.SetDefault("/block/height/"+strconv.Itoa(b.Height), b)
	c.blocks.SetDefault("/block/hash/"+url.PathEscape(b.Hash), b)
}

// call sends reqBody as JSON to /api/v1+path and decodes the response into
// respBody.
func (c *Client) call(ctx context.Context, method, path string, reqBody, respBody any) error {
	var bodyReader io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+"/api/v1"+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(body, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return apiErr
	}

	if respBody != nil {
		if err := json.Unmarshal(body, respBody); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
