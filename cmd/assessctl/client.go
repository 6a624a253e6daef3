package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const apiPrefix = "/api/v1"

type assessClient struct {
	a    *app
	http *http.Client
}

func (a *app) client() *assessClient {
	return &assessClient{
		a: a,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError is the error body returned by the server.
type apiError struct {
	Status    int    `json:"-"`
	Msg       string `json:"error"`
	Message   string `json:"message,omitempty"`
	Field     string `json:"field,omitempty"`
	Code      string `json:"code,omitempty"`
	Operation string `json:"operation,omitempty"`
}

func (e *apiError) Error() string {
	msg := e.Msg
	if e.Message != "" && e.Message != msg {
		msg = msg + ": " + e.Message
	}
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Code != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Code)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, msg)
}

func (c *assessClient) do(method, path string, body, v any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal error: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.a.serverURL+path, rd)
	if err != nil {
		return fmt.Errorf("request creation failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.a.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.a.token)
	} else if c.a.userID != "" {
		req.Header.Set("X-User-Id", c.a.userID)
		req.Header.Set("X-User-Role", c.a.userRole)
		if c.a.userName != "" {
			req.Header.Set("X-User-Name", c.a.userName)
		}
		if c.a.userEmail != "" {
			req.Header.Set("X-User-Email", c.a.userEmail)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		e := &apiError{Status: resp.StatusCode}
		if json.Unmarshal(raw, e) != nil || e.Msg == "" {
			e.Msg = string(bytes.TrimSpace(raw))
		}
		return e
	}
	if v == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode error: %w", err)
	}
	return nil
}

func (c *assessClient) get(path string, v any) error {
	return c.do(http.MethodGet, apiPrefix+path, nil, v)
}

func (c *assessClient) post(path string, body, v any) error {
	return c.do(http.MethodPost, apiPrefix+path, body, v)
}

func (c *assessClient) put(path string, body, v any) error {
	return c.do(http.MethodPut, apiPrefix+path, body, v)
}

func (c *assessClient) delete(path string, v any) error {
	return c.do(http.MethodDelete, apiPrefix+path, nil, v)
}
