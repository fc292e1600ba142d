// Package remote talks to a codepair server over HTTP and WebSocket.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/eldtechnologies/codepair/internal/models"
)

// TransportError is returned for any non-2xx response. Its message is the
// response body as sent by the server.
type TransportError struct {
	StatusCode int
	Body       string
}

func (e *TransportError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return e.Body
}

// Client is a DataStore backed by a remote codepair server.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a client for the server at baseURL. Requests have no
// timeout of their own; pass a context deadline to bound them.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{},
	}
}

// doRequest performs an HTTP request and returns the status code and body.
// Statuses >= 400 are returned as *TransportError.
func (c *Client) doRequest(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return 0, nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}

	if resp.StatusCode >= 400 {
		return resp.StatusCode, respBody, &TransportError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return resp.StatusCode, respBody, nil
}

// roomRequest performs a request that returns a Room. 404 maps to (nil, nil).
func (c *Client) roomRequest(ctx context.Context, method, path string, payload any) (*models.Room, error) {
	status, body, err := c.doRequest(ctx, method, path, payload)
	if status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var room models.Room
	if err := json.Unmarshal(body, &room); err != nil {
		return nil, fmt.Errorf("decode room: %w", err)
	}
	return &room, nil
}

func roomPath(id string, rest ...string) string {
	p := "/rooms/" + url.PathEscape(models.NormalizeRoomID(id))
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

// Close is a no-op; idle connections belong to the HTTP client.
func (c *Client) Close() {}

// Ping calls the server's health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	_, _, err := c.doRequest(ctx, http.MethodGet, "/health", nil)
	return err
}

type createRoomRequest struct {
	Language models.Language `json:"language"`
}

type updateCodeRequest struct {
	Code string `json:"code"`
}

type updateLanguageRequest struct {
	Language models.Language `json:"language"`
}

type addParticipantRequest struct {
	Name *string `json:"name"`
}

// CreateRoom creates a room on the server.
func (c *Client) CreateRoom(ctx context.Context, language models.Language) (*models.Room, error) {
	_, body, err := c.doRequest(ctx, http.MethodPost, "/rooms", createRoomRequest{Language: language})
	if err != nil {
		return nil, err
	}

	var room models.Room
	if err := json.Unmarshal(body, &room); err != nil {
		return nil, fmt.Errorf("decode room: %w", err)
	}
	return &room, nil
}

// GetRoom fetches a room.
func (c *Client) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	return c.roomRequest(ctx, http.MethodGet, roomPath(id), nil)
}

// JoinRoom joins a room.
func (c *Client) JoinRoom(ctx context.Context, id string) (*models.Room, error) {
	return c.roomRequest(ctx, http.MethodPost, roomPath(id, "join"), nil)
}

// LeaveRoom leaves a room. The server answers 204 with no body, so the
// returned room is always nil; a 404 is not an error.
func (c *Client) LeaveRoom(ctx context.Context, id string) (*models.Room, error) {
	status, _, err := c.doRequest(ctx, http.MethodPost, roomPath(id, "leave"), nil)
	if status == http.StatusNotFound {
		return nil, nil
	}
	return nil, err
}

// UpdateCode replaces a room's code buffer.
func (c *Client) UpdateCode(ctx context.Context, id, code string) (*models.Room, error) {
	return c.roomRequest(ctx, http.MethodPatch, roomPath(id, "code"), updateCodeRequest{Code: code})
}

// UpdateLanguage changes a room's language.
func (c *Client) UpdateLanguage(ctx context.Context, id string, language models.Language) (*models.Room, error) {
	return c.roomRequest(ctx, http.MethodPatch, roomPath(id, "language"), updateLanguageRequest{Language: language})
}

// AddParticipant registers a named (or anonymous) participant.
func (c *Client) AddParticipant(ctx context.Context, roomID string, name *string) (*models.Participant, error) {
	status, body, err := c.doRequest(ctx, http.MethodPost, roomPath(roomID, "participants"), addParticipantRequest{Name: name})
	if status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var p models.Participant
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode participant: %w", err)
	}
	return &p, nil
}

// ListParticipants lists a room's participants. Returns (nil, nil) for an unknown room.
func (c *Client) ListParticipants(ctx context.Context, roomID string) ([]models.Participant, error) {
	status, body, err := c.doRequest(ctx, http.MethodGet, roomPath(roomID, "participants"), nil)
	if status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	participants := []models.Participant{}
	if err := json.Unmarshal(body, &participants); err != nil {
		return nil, fmt.Errorf("decode participants: %w", err)
	}
	return participants, nil
}

// RemoveParticipant removes a participant. Returns false when the server
// reports the room or participant as unknown.
func (c *Client) RemoveParticipant(ctx context.Context, roomID, participantID string) (bool, error) {
	status, _, err := c.doRequest(ctx, http.MethodDelete, roomPath(roomID, "participants", url.PathEscape(participantID)), nil)
	if status == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
