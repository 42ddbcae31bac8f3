package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultRequestTimeout = 15 * time.Second

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &http.Client{Timeout: timeout}
}

type apiError struct {
	StatusCode int
	Body       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("provider API returned status %d: %s", e.StatusCode, e.Body)
}

func doJSON(ctx context.Context, client HTTPDoer, method, url string, payload interface{}, headers map[string]string) (map[string]interface{}, error) {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return send(client, req)
}

func doForm(ctx context.Context, client HTTPDoer, method, url string, form string, headers map[string]string) (map[string]interface{}, error) {
	var body io.Reader
	if form != "" {
		body = strings.NewReader(form)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	if form != "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return send(client, req)
}

func send(client HTTPDoer, req *http.Request) (map[string]interface{}, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &apiError{StatusCode: resp.StatusCode, Body: truncate(string(data), 512)}
	}

	result := map[string]interface{}{}
	if len(bytes.TrimSpace(data)) == 0 {
		return result, nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// str reads a string at a nested path of a decoded JSON object.
func str(m map[string]interface{}, path ...string) string {
	v := lookup(m, path...)
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%f", t), "0"), ".")
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func num(m map[string]interface{}, path ...string) (int64, bool) {
	switch t := lookup(m, path...).(type) {
	case float64:
		return int64(t), true
	case json.Number:
		i, err := t.Int64()
		return i, err == nil
	}
	return 0, false
}

func obj(m map[string]interface{}, path ...string) map[string]interface{} {
	if v, ok := lookup(m, path...).(map[string]interface{}); ok {
		return v
	}
	return map[string]interface{}{}
}

func lookup(m map[string]interface{}, path ...string) interface{} {
	var cur interface{} = m
	for _, key := range path {
		next, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur = next[key]
	}
	return cur
}
