// Package resolver is the HTTP client of the knowledge service. It sends
// natural-language queries and fact mutations and decodes the replies.
package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/OFFIS-RIT/lineage/pkg/logger"
)

var tracer = otel.Tracer("github.com/OFFIS-RIT/lineage/pkg/resolver")

const maxBodyBytes = 8 << 20

// APIError is returned for non-2xx replies. Message is the text the service
// supplied, or "API error: <status>" when it supplied none.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// Client talks to the knowledge service.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClientParams configures a Client. BaseURL is the API root, e.g.
// "http://localhost:8000/api". Timeout bounds every single request and
// defaults to 30 seconds.
type NewClientParams struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewClient creates a Client.
//
// Example:
//
//	client := resolver.NewClient(resolver.NewClientParams{
//		BaseURL: "http://localhost:8000/api",
//		Timeout: 30 * time.Second,
//	})
//	resp, err := client.NaturalQuery(ctx, "Visualize Kevin's family tree")
func NewClient(params NewClientParams) *Client {
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	hc := params.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(params.BaseURL, "/"),
		http:    hc,
	}
}

// NaturalQuery sends a free-text query and decodes the reply.
func (c *Client) NaturalQuery(ctx context.Context, query string) (*Response, error) {
	ctx, span := tracer.Start(ctx, "resolver.NaturalQuery")
	defer span.End()

	body, err := c.post(ctx, "/natural_query", map[string]string{"query": query}, "error")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	resp, err := ParseResponse(body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("resolver.kind", string(resp.Kind)))
	return resp, nil
}

// AddFacts asserts all facts in a single request and returns the service
// message.
func (c *Client) AddFacts(ctx context.Context, facts []string) (string, error) {
	ctx, span := tracer.Start(ctx, "resolver.AddFacts")
	defer span.End()
	span.SetAttributes(attribute.Int("resolver.facts", len(facts)))

	body, err := c.post(ctx, "/add_facts", map[string][]string{"facts": facts}, "detail")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return gjson.GetBytes(body, "message").String(), nil
}

// RemoveFact retracts one fact and returns the service message.
func (c *Client) RemoveFact(ctx context.Context, fact string) (string, error) {
	ctx, span := tracer.Start(ctx, "resolver.RemoveFact")
	defer span.End()

	body, err := c.post(ctx, "/remove_fact", map[string]string{"fact": fact}, "detail")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return gjson.GetBytes(body, "message").String(), nil
}

// post sends payload as JSON and returns the body of a 2xx reply. For
// other statuses the field errKey of the reply becomes the APIError text.
func (c *Client) post(ctx context.Context, path string, payload any, errKey string) ([]byte, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}

	logger.Debug("Resolver request finished",
		"path", path,
		"status", res.StatusCode,
		"duration", time.Since(start),
	)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		msg := ""
		if gjson.ValidBytes(body) {
			msg = gjson.GetBytes(body, errKey).String()
		}
		if msg == "" {
			msg = fmt.Sprintf("API error: %d", res.StatusCode)
		}
		return nil, &APIError{Status: res.StatusCode, Message: msg}
	}
	return body, nil
}
