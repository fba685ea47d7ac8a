package utils

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	gmailSendScope    = "https://www.googleapis.com/auth/gmail.send"
	gmailSendEndpoint = "https://gmail.googleapis.com/gmail/v1/users/me/messages/send"
)

// GmailConfig holds OAuth client credentials and the mailbox refresh token.
type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// GmailGateway sends through the Gmail API on behalf of an OAuth-authorized
// mailbox.
type GmailGateway struct {
	tokens   oauth2.TokenSource
	endpoint string
}

func NewGmailGateway(ctx context.Context, cfg GmailConfig) *GmailGateway {
	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmailSendScope},
	}
	ts := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	return NewGmailGatewayWithTokenSource(ts, gmailSendEndpoint)
}

func NewGmailGatewayWithTokenSource(ts oauth2.TokenSource, endpoint string) *GmailGateway {
	return &GmailGateway{
		tokens:   oauth2.ReuseTokenSource(nil, ts),
		endpoint: endpoint,
	}
}

type gmailSendResponse struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
	Error    *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (g *GmailGateway) Send(ctx context.Context, msg OutboundMessage) (SendResult, error) {
	if err := ValidateMessage(msg); err != nil {
		return SendResult{}, err
	}

	raw, err := buildMIMEMessage(msg, time.Now())
	if err != nil {
		return SendResult{}, fmt.Errorf("failed to build message: %w", err)
	}

	payload, err := json.Marshal(map[string]string{
		"raw": base64.RawURLEncoding.EncodeToString(raw),
	})
	if err != nil {
		return SendResult{}, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(payload))
	if err != nil {
		return SendResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	client := oauth2.NewClient(ctx, g.tokens)
	resp, err := client.Do(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("gmail send failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return SendResult{}, fmt.Errorf("failed to read gmail response: %w", err)
	}

	var out gmailSendResponse
	_ = json.Unmarshal(body, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if out.Error != nil && out.Error.Message != "" {
			return SendResult{}, fmt.Errorf("gmail rejected message: status %d: %s", resp.StatusCode, out.Error.Message)
		}
		return SendResult{}, fmt.Errorf("gmail rejected message: status %d", resp.StatusCode)
	}

	return SendResult{MessageID: out.ID}, nil
}

func buildMIMEMessage(msg OutboundMessage, now time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{{Name: msg.FromName, Address: msg.From}})
	h.SetAddressList("To", []*mail.Address{{Address: msg.To}})
	h.SetSubject(msg.Subject)
	h.Set("Message-Id", fmt.Sprintf("<%s@%s>", uuid.New().String(), messageIDDomain(msg.From, "")))
	h.SetContentType("text/html", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, msg.HTMLBody); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
