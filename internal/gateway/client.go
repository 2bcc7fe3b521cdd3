// Package gateway is the REST boundary to the upstream messaging backend.
// Responses are decoded into canonical shapes at this boundary; malformed
// records never travel further inward.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/guonaihong/gout"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/coolnoor19/wadesk/config"
	"github.com/coolnoor19/wadesk/internal/domain"
	"github.com/coolnoor19/wadesk/internal/identity"
)

const requestTimeout = 15 * time.Second

// Client talks to the backend REST API.
type Client struct {
	baseURL string
	token   string
}

// NewClient builds a client from the backend configuration.
func NewClient(cfg config.BackendConfig) *Client {
	return &Client{baseURL: cfg.BaseURL, token: cfg.Token}
}

func (c *Client) headers() gout.H {
	h := gout.H{"Accept": "application/json"}
	if c.token != "" {
		h["Authorization"] = "Bearer " + c.token
	}
	return h
}

// ChatHistory fetches the flat message history of a session.
func (c *Client) ChatHistory(ctx context.Context, sessionID string) ([]domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var body []byte
	var code int
	err := gout.GET(fmt.Sprintf("%s/api/sessions/%s/messages", c.baseURL, sessionID)).
		WithContext(ctx).
		SetHeader(c.headers()).
		BindBody(&body).
		Code(&code).
		Do()
	if err != nil {
		return nil, errors.Wrap(err, "history request")
	}
	if code != http.StatusOK {
		return nil, errors.Errorf("history request returned status %d", code)
	}
	msgs, err := domain.ParseMessages(body, identity.Normalize)
	if err != nil {
		return nil, errors.Wrap(err, "parse history")
	}
	return msgs, nil
}

// Sessions fetches the chat session list.
func (c *Client) Sessions(ctx context.Context) ([]domain.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var body []byte
	var code int
	err := gout.GET(c.baseURL + "/api/sessions").
		WithContext(ctx).
		SetHeader(c.headers()).
		BindBody(&body).
		Code(&code).
		Do()
	if err != nil {
		return nil, errors.Wrap(err, "session list request")
	}
	if code != http.StatusOK {
		return nil, errors.Errorf("session list returned status %d", code)
	}
	sessions, err := domain.ParseSessions(body)
	if err != nil {
		return nil, errors.Wrap(err, "parse session list")
	}
	return sessions, nil
}

type sendResponse struct {
	Success  bool   `json:"success"`
	ServerID string `json:"serverId"`
}

func (c *Client) send(ctx context.Context, path string, payload gout.H) (domain.SendResult, error) {
	// an in-flight send must run to completion even when the caller's
	// request context is cancelled (navigation away, HTTP handler return);
	// the pending entry's resolution is the single source of truth and only
	// the request timeout bounds the call
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), requestTimeout)
	defer cancel()

	var resp sendResponse
	var code int
	err := gout.POST(c.baseURL + path).
		WithContext(ctx).
		SetHeader(c.headers()).
		SetJSON(payload).
		BindJSON(&resp).
		Code(&code).
		Do()
	if err != nil {
		return domain.SendResult{}, errors.Wrap(err, "send request")
	}
	if code != http.StatusOK {
		return domain.SendResult{}, errors.Errorf("send returned status %d", code)
	}
	return domain.SendResult{Success: resp.Success, ServerID: resp.ServerID}, nil
}

// SendToUser sends a text message to an individual identity.
func (c *Client) SendToUser(ctx context.Context, sessionID, to, text string) (domain.SendResult, error) {
	return c.send(ctx, "/api/send", gout.H{
		"sessionId": sessionID,
		"to":        to,
		"text":      text,
	})
}

// SendToGroup sends a text message to a group identity.
func (c *Client) SendToGroup(ctx context.Context, sessionID, groupID, text string) (domain.SendResult, error) {
	return c.send(ctx, "/api/send/group", gout.H{
		"sessionId": sessionID,
		"groupId":   groupID,
		"text":      text,
	})
}

// RequestPairing asks the backend to begin pairing for a phone identity.
// The QR code itself arrives asynchronously over the socket.
func (c *Client) RequestPairing(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var code int
	err := gout.POST(c.baseURL + "/api/sessions/connect").
		WithContext(ctx).
		SetHeader(c.headers()).
		SetJSON(gout.H{"id": id}).
		Code(&code).
		Do()
	if err != nil {
		return errors.Wrap(err, "pairing request")
	}
	if code != http.StatusOK {
		return errors.Errorf("pairing request returned status %d", code)
	}
	zap.L().Info("gateway: pairing requested", zap.String("session_id", id))
	return nil
}

// EndPairing terminates a pairing session server-side. Callers treat
// failures as non-fatal; the session is already terminal locally.
func (c *Client) EndPairing(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var code int
	err := gout.POST(fmt.Sprintf("%s/api/sessions/%s/disconnect", c.baseURL, id)).
		WithContext(ctx).
		SetHeader(c.headers()).
		Code(&code).
		Do()
	if err != nil {
		return errors.Wrap(err, "end pairing request")
	}
	if code != http.StatusOK {
		return errors.Errorf("end pairing returned status %d", code)
	}
	return nil
}
