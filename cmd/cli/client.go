package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// apiError is a decoded problem+json response.
type apiError struct {
	Status     int    `json:"status"`
	Code       string `json:"code"`
	Title      string `json:"title"`
	Detail     string `json:"detail"`
	RetryAfter time.Duration
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.message())
}

func (e *apiError) message() string {
	msg := e.Title
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(", retry after %s", e.RetryAfter)
	}
	return msg
}

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	EmployerID   string `json:"employer_id"`
}

func (p tokenPair) file() tokenFile {
	return tokenFile{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(p.ExpiresIn) * time.Second).UTC(),
		EmployerID:   p.EmployerID,
	}
}

type employer struct {
	ID          string          `json:"id"`
	CompanyName string          `json:"company_name"`
	Email       string          `json:"email"`
	ContactInfo json.RawMessage `json:"contact_info,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type job struct {
	ID         string    `json:"id"`
	EmployerID string    `json:"employer_id"`
	Title      string    `json:"title"`
	Location   string    `json:"location,omitempty"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

type jobPage struct {
	Items      []job   `json:"items"`
	NextCursor *string `json:"next_cursor"`
}

// client talks to the API. Authenticated calls read the saved session and,
// on a 401, rotate the refresh token once and retry.
type client struct {
	base string
	hc   *http.Client
}

func newClient(base string, hc *http.Client) *client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &client{base: strings.TrimRight(base, "/"), hc: hc}
}

func (c *client) register(ctx context.Context, company, email, password string, contact json.RawMessage) (tokenPair, error) {
	var out tokenPair
	body := map[string]any{"company_name": company, "email": email, "password": password}
	if len(contact) > 0 {
		body["contact_info"] = contact
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/register", "", body, &out)
	return out, err
}

func (c *client) login(ctx context.Context, email, password string) (tokenPair, error) {
	var out tokenPair
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": email, "password": password}, &out)
	return out, err
}

func (c *client) refresh(ctx context.Context, refreshToken string) (tokenPair, error) {
	var out tokenPair
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refresh_token": refreshToken}, &out)
	return out, err
}

func (c *client) logout(ctx context.Context, tf tokenFile) error {
	var body any
	if tf.RefreshToken != "" {
		body = map[string]string{"refresh_token": tf.RefreshToken}
	}
	return c.do(ctx, http.MethodPost, "/api/v1/auth/logout", tf.AccessToken, body, nil)
}

func (c *client) me(ctx context.Context) (employer, error) {
	var out employer
	err := c.authed(ctx, http.MethodGet, "/api/v1/employers/me", &out)
	return out, err
}

func (c *client) jobs(ctx context.Context, public bool, cursor string, pageSize int) (jobPage, error) {
	path := "/api/v1/jobs"
	if public {
		path = "/api/v1/public/jobs"
	}
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if pageSize > 0 {
		q.Set("page_size", strconv.Itoa(pageSize))
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out jobPage
	var err error
	if public {
		err = c.do(ctx, http.MethodGet, path, "", nil, &out)
	} else {
		err = c.authed(ctx, http.MethodGet, path, &out)
	}
	return out, err
}

// authed performs a bearer-authenticated call with one refresh-and-retry on 401.
func (c *client) authed(ctx context.Context, method, path string, out any) error {
	tf, err := loadTokens()
	if err != nil {
		return err
	}
	err = c.do(ctx, method, path, tf.AccessToken, nil, out)
	var ae *apiError
	if !errors.As(err, &ae) || ae.Status != http.StatusUnauthorized || tf.RefreshToken == "" {
		return err
	}

	pair, rerr := c.refresh(ctx, tf.RefreshToken)
	if rerr != nil {
		return fmt.Errorf("session expired, login again: %w", rerr)
	}
	if err := saveTokens(pair.file()); err != nil {
		return err
	}
	return c.do(ctx, method, path, pair.AccessToken, nil, out)
}

func (c *client) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeProblem(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeProblem(resp *http.Response) error {
	ae := &apiError{Status: resp.StatusCode, Title: http.StatusText(resp.StatusCode)}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(b, ae)
	ae.Status = resp.StatusCode
	if s := resp.Header.Get("Retry-After"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			ae.RetryAfter = time.Duration(n) * time.Second
		}
	}
	return ae
}
