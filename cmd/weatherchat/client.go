package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// apiClient talks to the chat endpoints of a weather-assistant server.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string, timeout time.Duration) *apiClient {
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// do sends body as JSON and decodes the data field of a success response into out.
func (c *apiClient) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var payload struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		if payload.Message == "" {
			payload.Message = http.StatusText(resp.StatusCode)
		}
		return &apiError{Status: resp.StatusCode, Message: payload.Message}
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(envelope.Data, out)
}

type location struct {
	City    string `json:"city"`
	Country string `json:"country"`
}

type preferences struct {
	Language string    `json:"language,omitempty"`
	Theme    string    `json:"theme,omitempty"`
	Location *location `json:"location,omitempty"`
}

type message struct {
	Type         string    `json:"type"`
	Content      string    `json:"content"`
	Language     string    `json:"language"`
	IsVoiceInput bool      `json:"isVoiceInput"`
	Timestamp    time.Time `json:"timestamp"`
}

type weatherData struct {
	Location    string  `json:"location"`
	Temperature float64 `json:"temperature"`
	Description string  `json:"description"`
	Humidity    float64 `json:"humidity"`
	WindSpeed   float64 `json:"windSpeed"`
}

type suggestion struct {
	Theme      string  `json:"theme"`
	Suggestion string  `json:"suggestion"`
	Confidence float64 `json:"confidence"`
}

type createdSession struct {
	SessionID   string      `json:"sessionId"`
	UserID      string      `json:"userId"`
	Preferences preferences `json:"preferences"`
}

type turn struct {
	UserMessage      message      `json:"userMessage"`
	AssistantMessage message      `json:"assistantMessage"`
	WeatherData      *weatherData `json:"weatherData"`
	Suggestion       *suggestion  `json:"suggestion"`
	Degradations     []struct {
		Dependency string `json:"dependency"`
		Message    string `json:"message"`
	} `json:"degradations"`
}

type history struct {
	SessionID     string       `json:"sessionId"`
	Messages      []message    `json:"messages"`
	WeatherData   *weatherData `json:"weatherData"`
	Suggestions   []suggestion `json:"suggestions"`
	Preferences   preferences  `json:"preferences"`
	TotalMessages int          `json:"totalMessages"`
}

func (c *apiClient) createSession(ctx context.Context, userID string, prefs preferences) (*createdSession, error) {
	var out createdSession
	body := map[string]any{"userId": userID, "preferences": prefs}
	if err := c.do(ctx, http.MethodPost, "/api/chat/session", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type sendRequest struct {
	SessionID    string    `json:"sessionId"`
	Message      string    `json:"message"`
	IsVoiceInput bool      `json:"isVoiceInput"`
	Language     string    `json:"language,omitempty"`
	Location     *location `json:"location,omitempty"`
}

func (c *apiClient) send(ctx context.Context, req sendRequest) (*turn, error) {
	var out turn
	if err := c.do(ctx, http.MethodPost, "/api/chat/message", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) history(ctx context.Context, sessionID string, limit, offset int) (*history, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if offset > 0 {
		q.Set("offset", fmt.Sprint(offset))
	}
	var out history
	if err := c.do(ctx, http.MethodGet, "/api/chat/history/"+url.PathEscape(sessionID), q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) updatePreferences(ctx context.Context, sessionID string, prefs preferences) (*preferences, error) {
	var out struct {
		Preferences preferences `json:"preferences"`
	}
	if err := c.do(ctx, http.MethodPut, "/api/chat/preferences/"+url.PathEscape(sessionID), nil, prefs, &out); err != nil {
		return nil, err
	}
	return &out.Preferences, nil
}
