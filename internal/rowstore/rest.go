package rowstore

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
)

// TokenFunc returns the bearer token for the next request. The hosted API
// applies row-level security based on it.
type TokenFunc func() string

// RESTStore is a PostgREST client.
type RESTStore struct {
	baseURL string
	apiKey  string
	token   TokenFunc
	client  *http.Client
}

// NewRESTStore returns a store for projectURL (for example
// https://xyz.supabase.co). token may be nil, in which case the API key is
// used as the bearer.
func NewRESTStore(projectURL, apiKey string, client *http.Client, token TokenFunc) *RESTStore {
	if client == nil {
		client = http.DefaultClient
	}
	return &RESTStore{
		baseURL: strings.TrimRight(projectURL, "/") + "/rest/v1",
		apiKey:  apiKey,
		token:   token,
		client:  client,
	}
}

func (s *RESTStore) Select(ctx context.Context, table string, q *Query, dest any) error {
	resp, err := s.do(ctx, "select", table, http.MethodGet, q.Values(), nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return &Error{Op: "select", Table: table, Message: "decode rows", Err: err}
	}
	return nil
}

func (s *RESTStore) Count(ctx context.Context, table string, q *Query) (int, error) {
	vals := q.Values()
	vals.Del("order")
	resp, err := s.do(ctx, "count", table, http.MethodHead, vals, nil, map[string]string{
		"Prefer": "count=exact",
	})
	if err != nil {
		return 0, err
	}
	resp.Body.Close()

	n, err := parseContentRange(resp.Header.Get("Content-Range"))
	if err != nil {
		return 0, &Error{Op: "count", Table: table, Message: "parse content-range", Err: err}
	}
	return n, nil
}

func (s *RESTStore) Insert(ctx context.Context, table string, row, dest any) error {
	return s.write(ctx, "insert", table, http.MethodPost, nil, row, dest, "return=representation")
}

func (s *RESTStore) Upsert(ctx context.Context, table string, row, dest any) error {
	return s.write(ctx, "upsert", table, http.MethodPost, nil, row, dest,
		"resolution=merge-duplicates,return=representation")
}

func (s *RESTStore) Update(ctx context.Context, table string, id, patch, dest any) error {
	vals := url.Values{}
	vals.Set("id", "eq."+fmt.Sprint(id))
	return s.write(ctx, "update", table, http.MethodPatch, vals, patch, dest, "return=representation")
}

func (s *RESTStore) Delete(ctx context.Context, table string, id any) error {
	vals := url.Values{}
	vals.Set("id", "eq."+fmt.Sprint(id))
	resp, err := s.do(ctx, "delete", table, http.MethodDelete, vals, nil, map[string]string{
		"Prefer": "return=minimal",
	})
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (s *RESTStore) Ping(ctx context.Context) error {
	resp, err := s.do(ctx, "ping", "", http.MethodGet, nil, nil, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (s *RESTStore) write(ctx context.Context, op, table, method string, vals url.Values, body, dest any, prefer string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &Error{Op: op, Table: table, Message: "encode row", Err: err}
	}
	resp, err := s.do(ctx, op, table, method, vals, payload, map[string]string{
		"Prefer":       prefer,
		"Content-Type": "application/json",
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var rows []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return &Error{Op: op, Table: table, Message: "decode rows", Err: err}
	}
	if len(rows) == 0 {
		return &Error{Op: op, Table: table, Status: resp.StatusCode, Message: "no row returned", Err: ErrNotFound}
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(rows[0], dest); err != nil {
		return &Error{Op: op, Table: table, Message: "decode row", Err: err}
	}
	return nil
}

func (s *RESTStore) do(ctx context.Context, op, table, method string, vals url.Values, body []byte, headers map[string]string) (*http.Response, error) {
	u := s.baseURL + "/" + table
	if len(vals) > 0 {
		u += "?" + vals.Encode()
	}
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, &Error{Op: op, Table: table, Message: "build request", Err: err}
	}

	bearer := s.apiKey
	if s.token != nil {
		if t := s.token(); t != "" {
			bearer = t
		}
	}
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &Error{Op: op, Table: table, Err: err}
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, decodeError(op, table, resp)
	}
	return resp, nil
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func decodeError(op, table string, resp *http.Response) error {
	e := &Error{Op: op, Table: table, Status: resp.StatusCode}
	var body apiError
	if raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16)); err == nil && len(raw) > 0 {
		if json.Unmarshal(raw, &body) == nil && body.Message != "" {
			e.Code = body.Code
			e.Message = body.Message
		} else {
			e.Message = strings.TrimSpace(string(raw))
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(resp.StatusCode)
	}
	if resp.StatusCode == http.StatusNotFound {
		e.Err = ErrNotFound
	}
	return e
}

// parseContentRange reads the total out of "0-24/3573" or "*/0".
func parseContentRange(h string) (int, error) {
	i := strings.LastIndexByte(h, '/')
	if i < 0 {
		return 0, fmt.Errorf("malformed content-range %q", h)
	}
	total := h[i+1:]
	if total == "*" {
		return 0, fmt.Errorf("content-range %q has no total", h)
	}
	return strconv.Atoi(total)
}
