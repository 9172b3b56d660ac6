package emailclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// HTTPEmailClient talks to a Postmark-style email HTTP API.
type HTTPEmailClient struct {
	logger      *slog.Logger
	httpClient  *http.Client
	baseURL     string
	serverToken string
	sender      string
}

func NewHTTPEmailClient(logger *slog.Logger, baseURL, serverToken, sender string, timeout time.Duration, httpClient *http.Client) *HTTPEmailClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &HTTPEmailClient{
		logger:      logger.With("transport", "email_http"),
		httpClient:  httpClient,
		baseURL:     baseURL,
		serverToken: serverToken,
		sender:      sender,
	}
}

type sendEmailBody struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HTMLBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

// Send posts one email. Network errors, timeouts, 408/429 and 5xx responses
// come back as transient transport errors; any other non-2xx response is
// permanent.
func (c *HTTPEmailClient) Send(ctx context.Context, req SendEmailRequest) error {
	body, err := json.Marshal(sendEmailBody{
		From:     c.sender,
		To:       req.To,
		Subject:  req.Subject,
		HTMLBody: req.HTMLBody,
		TextBody: req.TextBody,
	})
	if err != nil {
		return &TransportError{Kind: ErrorKindPermanent, Err: fmt.Errorf("marshal send request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/email", bytes.NewReader(body))
	if err != nil {
		return &TransportError{Kind: ErrorKindPermanent, Err: fmt.Errorf("build send request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Covers DNS failures, refused connections and client timeouts.
		return &TransportError{Kind: ErrorKindTransient, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	kind := classifyStatus(resp.StatusCode)
	c.logger.WarnContext(ctx, "email API rejected send",
		"status_code", resp.StatusCode, "kind", kind.String(), "recipient", req.To, "body", string(respBody))
	return &TransportError{
		Kind:       kind,
		StatusCode: resp.StatusCode,
		Err:        fmt.Errorf("email API returned status %d: %s", resp.StatusCode, respBody),
	}
}

func classifyStatus(statusCode int) ErrorKind {
	switch {
	case statusCode >= 500:
		return ErrorKindTransient
	case statusCode == http.StatusRequestTimeout, statusCode == http.StatusTooManyRequests:
		return ErrorKindTransient
	default:
		return ErrorKindPermanent
	}
}
