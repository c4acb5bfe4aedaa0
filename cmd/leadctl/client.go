package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/and161185/leadgate/internal/model"
	httpserver "github.com/and161185/leadgate/internal/server/http"
)

// apiClient talks to the admin API.
type apiClient struct {
	base string
	hc   *http.Client
}

func newAPIClient(server string) *apiClient {
	return &apiClient{
		base: strings.TrimRight(server, "/"),
		hc:   &http.Client{Timeout: 30 * time.Second},
	}
}

type loginResult struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// apiError carries the server's user-facing message.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (c *apiClient) do(req *http.Request, out any) error {
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		var res model.Result
		_ = json.Unmarshal(body, &res)
		return &apiError{Status: resp.StatusCode, Message: res.Message}
	}
	return json.Unmarshal(body, out)
}

func (c *apiClient) login(ctx context.Context, username, password string) (loginResult, error) {
	payload, _ := json.Marshal(map[string]string{"username": username, "password": password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/admin/login", bytes.NewReader(payload))
	if err != nil {
		return loginResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	var out loginResult
	if err := c.do(req, &out); err != nil {
		return loginResult{}, err
	}
	return out, nil
}

func (c *apiClient) leads(ctx context.Context, token, source string, limit int) ([]httpserver.LeadView, error) {
	q := url.Values{}
	if source != "" {
		q.Set("source", source)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	u := c.base + "/api/admin/leads"
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	var out httpserver.LeadList
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out.Leads, nil
}
