package utils

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// Tracker embeds an open beacon and rewrites links for click tracking.
// Output depends only on its inputs.
type Tracker struct {
	BaseURL string
	Secret  string
}

func NewTracker(baseURL, secret string) *Tracker {
	return &Tracker{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Secret:  secret,
	}
}

// OpenPixelURL returns the open-tracking beacon URL for a correlation id.
func (t *Tracker) OpenPixelURL(correlationID string) string {
	return fmt.Sprintf("%s/track/open/%s/%s", t.BaseURL, url.PathEscape(correlationID), t.Token(correlationID))
}

// ClickURL returns the redirect-through-tracking form of originalURL.
func (t *Tracker) ClickURL(correlationID, originalURL string) string {
	return fmt.Sprintf("%s/track/click/%s/%s?url=%s",
		t.BaseURL, url.PathEscape(correlationID), t.Token(correlationID), url.QueryEscape(originalURL))
}

// Token signs the correlation id so tracking endpoints can reject forged hits.
func (t *Tracker) Token(correlationID string) string {
	mac := hmac.New(sha256.New, []byte(t.Secret))
	mac.Write([]byte(correlationID))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))[:22]
}

// Wrap rewrites every http(s) anchor in htmlContent and appends an invisible
// open beacon (inside </body> when the document has one).
func (t *Tracker) Wrap(htmlContent, correlationID string) string {
	if t == nil || t.BaseURL == "" {
		return htmlContent
	}

	rewritten := t.rewriteLinks(htmlContent, correlationID)
	pixel := fmt.Sprintf(`<img src="%s" alt="" width="1" height="1" style="display:none">`,
		html.EscapeString(t.OpenPixelURL(correlationID)))

	lower := strings.ToLower(rewritten)
	if idx := strings.LastIndex(lower, "</body>"); idx != -1 {
		return rewritten[:idx] + pixel + rewritten[idx:]
	}
	return rewritten + pixel
}

func (t *Tracker) rewriteLinks(content, correlationID string) string {
	var out bytes.Buffer
	z := html.NewTokenizer(strings.NewReader(content))

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() == io.EOF {
				return out.String()
			}
			// Unparseable remainder is kept verbatim.
			out.Write(z.Raw())
			return out.String()
		}

		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			out.Write(z.Raw())
			continue
		}

		raw := append([]byte(nil), z.Raw()...)
		tok := z.Token()
		if tok.Data != "a" || !t.rewriteHref(&tok, correlationID) {
			out.Write(raw)
			continue
		}
		out.WriteString(tok.String())
	}
}

func (t *Tracker) rewriteHref(tok *html.Token, correlationID string) bool {
	for i, attr := range tok.Attr {
		if attr.Namespace != "" || !strings.EqualFold(attr.Key, "href") {
			continue
		}
		href := strings.TrimSpace(attr.Val)
		lower := strings.ToLower(href)
		if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
			return false
		}
		tok.Attr[i].Val = t.ClickURL(correlationID, href)
		return true
	}
	return false
}
