package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"RTGateway/logger"
)

// HTTPChecker calls an external auth service over HTTP. This is the
// authoritative production collaborator.
type HTTPChecker struct {
	url    string
	client *http.Client
}

func NewHTTPChecker(url string, timeout time.Duration) *HTTPChecker {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPChecker{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type checkRequest struct {
	Token  string `json:"token"`
	RoomID string `json:"roomId"`
}

// CheckAccess posts {token, roomId} and expects a Result-shaped JSON body.
// Every failure is reported uniformly as an unsuccessful result.
func (c *HTTPChecker) CheckAccess(ctx context.Context, token, roomID string) Result {
	body, _ := json.Marshal(checkRequest{Token: token, RoomID: roomID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Result{Success: false, Message: "auth request build failed"}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		logger.Warnf("[auth] http check failed: %v", err)
		return Result{Success: false, Message: "auth service unreachable"}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{Success: false, Message: "auth service rejected request"}
	}

	var out Result
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		logger.Warnf("[auth] malformed auth response: %v", err)
		return Result{Success: false, Message: "malformed auth response"}
	}
	if !out.Success || out.UserID == "" {
		out.Success = false
		if out.Message == "" {
			out.Message = "access denied"
		}
	}
	return out
}
