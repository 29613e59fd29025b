package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/eldtechnologies/chatrelay/internal/models"
)

// API calls the relay's HTTP endpoints.
type API struct {
	BaseURL    string
	Token      string
	UserID     string // sent as ?user= when Token is empty
	HTTPClient *http.Client
}

// NewAPI creates an API client for baseURL, e.g. http://localhost:8080.
func NewAPI(baseURL, token, userID string) *API {
	return &API{
		BaseURL:    baseURL,
		Token:      token,
		UserID:     userID,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	u, err := url.Parse(a.BaseURL + path)
	if err != nil {
		return err
	}
	if a.Token == "" && a.UserID != "" {
		q := u.Query()
		q.Set("user", a.UserID)
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return fmt.Errorf("relay error %d: %s", resp.StatusCode, errResp.Error)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// Health returns the raw health document.
func (a *API) Health(ctx context.Context) (map[string]any, error) {
	var resp map[string]any
	err := a.do(ctx, http.MethodGet, "/health", nil, &resp)
	return resp, err
}

// Register creates or renames the caller.
func (a *API) Register(ctx context.Context, name string) (*models.User, error) {
	var user models.User
	if err := a.do(ctx, http.MethodPost, "/users", map[string]string{"name": name}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateConversation opens a conversation with the given participants.
func (a *API) CreateConversation(ctx context.Context, id string, participants ...string) (*models.Conversation, error) {
	req := map[string]any{"id": id, "participants": participants}
	var conv models.Conversation
	if err := a.do(ctx, http.MethodPost, "/conversations", req, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// History is a conversation with its latest messages.
type History struct {
	Conversation models.Conversation `json:"conversation"`
	Messages     []models.Message    `json:"messages"`
}

// History fetches a conversation's latest messages, oldest first.
func (a *API) History(ctx context.Context, conversationID string, limit int) (*History, error) {
	path := fmt.Sprintf("/conversations/%s/messages?limit=%d", url.PathEscape(conversationID), limit)
	var h History
	if err := a.do(ctx, http.MethodGet, path, nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Unread returns the caller's unread count.
func (a *API) Unread(ctx context.Context) (int64, error) {
	var resp struct {
		Unread int64 `json:"unread"`
	}
	err := a.do(ctx, http.MethodGet, "/unread", nil, &resp)
	return resp.Unread, err
}

// Presence looks up another identity.
func (a *API) Presence(ctx context.Context, userID string) (*models.Presence, error) {
	var p models.Presence
	if err := a.do(ctx, http.MethodGet, "/presence/"+url.PathEscape(userID), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
