package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
)

// HTTPGatewayConfig points the gateway at a JSON email API.
type HTTPGatewayConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// HTTPGateway posts messages to a transactional email API of the form
// POST {from,to,subject,html} -> {"id": "..."}.
type HTTPGateway struct {
	client   *fasthttp.Client
	endpoint string
	apiKey   string
	timeout  time.Duration
}

type httpSendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type httpSendResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

func NewHTTPGateway(cfg HTTPGatewayConfig) *HTTPGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPGateway{
		client: &fasthttp.Client{
			Name:         "raiseflow",
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		},
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		timeout:  timeout,
	}
}

func (g *HTTPGateway) Send(ctx context.Context, msg OutboundMessage) (SendResult, error) {
	if err := ValidateMessage(msg); err != nil {
		return SendResult{}, err
	}

	payload, err := json.Marshal(httpSendRequest{
		From:    formatAddress(msg.FromName, msg.From),
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTMLBody,
	})
	if err != nil {
		return SendResult{}, fmt.Errorf("failed to encode request: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(g.endpoint)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
	req.SetBody(payload)

	deadline := time.Now().Add(g.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := ctx.Err(); err != nil {
		return SendResult{}, err
	}
	if err := g.client.DoDeadline(req, resp, deadline); err != nil {
		return SendResult{}, fmt.Errorf("email api request failed: %w", err)
	}

	var body httpSendResponse
	_ = json.Unmarshal(resp.Body(), &body)

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		if body.Message != "" {
			return SendResult{}, fmt.Errorf("email api rejected message: status %d: %s", status, body.Message)
		}
		return SendResult{}, fmt.Errorf("email api rejected message: status %d", status)
	}

	return SendResult{MessageID: body.ID}, nil
}
