// Package push delivers notifications through the FCM HTTP v1 API.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/couchcryptid/quake-alert-service/internal/domain"
)

// Client sends messages to the FCM HTTP v1 messages:send endpoint.
type Client struct {
	httpClient *http.Client
	endpoint   string
	logger     *slog.Logger
}

// NewClient creates a push client that attaches a bearer token from creds to
// every request.
func NewClient(baseURL string, creds Credentials, timeout time.Duration, logger *slog.Logger) *Client {
	httpClient := oauth2.NewClient(context.Background(), creds.TokenSource)
	httpClient.Timeout = timeout

	return &Client{
		httpClient: httpClient,
		endpoint:   strings.TrimRight(baseURL, "/") + "/v1/projects/" + url.PathEscape(creds.ProjectID) + "/messages:send",
		logger:     logger,
	}
}

// Send delivers msg. An error wrapping domain.ErrTokenInvalid means the
// message token is permanently unusable. An error wrapping
// domain.ErrPushUnauthorized means the client's own credentials were refused
// or could not be minted. Any other error is transient.
func (c *Client) Send(ctx context.Context, msg domain.Message) error {
	body, err := json.Marshal(sendRequest{Message: toWire(msg)})
	if err != nil {
		return fmt.Errorf("marshal push message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return fmt.Errorf("%w: fetch access token: %w", domain.ErrPushUnauthorized, err)
		}
		return fmt.Errorf("push request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("read push response: %w", err)
	}

	if resp.StatusCode/100 == 2 {
		var sent struct {
			Name string `json:"name"`
		}
		_ = json.Unmarshal(respBody, &sent)
		c.logger.Debug("push sent", "message_name", sent.Name, "topic", msg.Topic)
		return nil
	}
	return classifyError(resp.StatusCode, respBody)
}

type sendRequest struct {
	Message wireMessage `json:"message"`
}

type wireMessage struct {
	Token        string           `json:"token,omitempty"`
	Topic        string           `json:"topic,omitempty"`
	Notification wireNotification `json:"notification"`
	Android      *wireAndroid     `json:"android,omitempty"`
	APNS         *wireAPNS        `json:"apns,omitempty"`
}

type wireNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type wireAndroid struct {
	Notification struct {
		Sound string `json:"sound"`
	} `json:"notification"`
}

type wireAPNS struct {
	Payload struct {
		APS struct {
			Sound string `json:"sound"`
		} `json:"aps"`
	} `json:"payload"`
}

// toWire renders a domain message in the FCM v1 shape. The sound is a
// platform-specific field, so it is set for both Android and APNs.
func toWire(msg domain.Message) wireMessage {
	w := wireMessage{
		Token: msg.Token,
		Topic: msg.Topic,
		Notification: wireNotification{
			Title: msg.Notification.Title,
			Body:  msg.Notification.Body,
		},
	}
	if sound := msg.Notification.Sound; sound != "" {
		w.Android = &wireAndroid{}
		w.Android.Notification.Sound = sound
		w.APNS = &wireAPNS{}
		w.APNS.Payload.APS.Sound = sound
	}
	return w
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Details []struct {
			Type      string `json:"@type"`
			ErrorCode string `json:"errorCode"`
		} `json:"details"`
	} `json:"error"`
}

// classifyError maps an FCM error response onto the token, credential, and
// transient split. UNREGISTERED, SENDER_ID_MISMATCH, and INVALID_ARGUMENT
// about the registration token are permanent for that token. Any other 401
// or 403 refuses the sender.
func classifyError(status int, body []byte) error {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err != nil {
		if len(body) > 256 {
			body = body[:256]
		}
		if unauthorizedStatus(status) {
			return fmt.Errorf("%w: status %d: %s", domain.ErrPushUnauthorized, status, body)
		}
		return fmt.Errorf("push API error: status %d: %s", status, body)
	}

	errorCode := er.Error.Status
	for _, d := range er.Error.Details {
		if d.ErrorCode != "" {
			errorCode = d.ErrorCode
			break
		}
	}

	switch {
	case errorCode == "UNREGISTERED", errorCode == "SENDER_ID_MISMATCH":
		return fmt.Errorf("%w: %s", domain.ErrTokenInvalid, er.Error.Message)
	case errorCode == "INVALID_ARGUMENT" && strings.Contains(strings.ToLower(er.Error.Message), "registration token"):
		return fmt.Errorf("%w: %s", domain.ErrTokenInvalid, er.Error.Message)
	case unauthorizedStatus(status), errorCode == "UNAUTHENTICATED", errorCode == "PERMISSION_DENIED",
		errorCode == "THIRD_PARTY_AUTH_ERROR":
		return fmt.Errorf("%w: status %d: %s: %s", domain.ErrPushUnauthorized, status, errorCode, er.Error.Message)
	default:
		return fmt.Errorf("push API error: status %d: %s: %s", status, errorCode, er.Error.Message)
	}
}

func unauthorizedStatus(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}
