package remote

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

	httphandler "github.com/ogurasousui/attendance-sync/internal/adapters/http/handler"
	"github.com/ogurasousui/attendance-sync/internal/adapters/wire"
	"github.com/ogurasousui/attendance-sync/internal/core/attendance"
	"github.com/ogurasousui/attendance-sync/internal/core/tracker"
)

const maxResponseBytes = 1 << 20

// HTTPTransport は JSON over HTTP の Transport です。
type HTTPTransport struct {
	baseURL   string
	client    *http.Client
	timeout   time.Duration
	userAgent string
}

// NewHTTPTransport は HTTPTransport を生成します。client が nil の場合は既定のクライアントを使います。
func NewHTTPTransport(baseURL string, timeout time.Duration, userAgent string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTransport{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    client,
		timeout:   timeout,
		userAgent: userAgent,
	}
}

func (t *HTTPTransport) Build(action string, data json.RawMessage) (tracker.Request, error) {
	body, err := json.Marshal(wire.ActionRequest{Action: action, Data: data})
	if err != nil {
		return tracker.Request{}, err
	}
	return tracker.Request{
		Endpoint: httphandler.AttendancePath,
		Method:   http.MethodPost,
		Headers:  map[string]string{"Content-Type": "application/json"},
		Body:     string(body),
	}, nil
}

func (t *HTTPTransport) Do(ctx context.Context, req tracker.Request) (wire.Record, error) {
	var rec wire.Record
	if err := t.call(ctx, req.Method, req.Endpoint, req.Headers, req.Body, &rec); err != nil {
		return wire.Record{}, err
	}
	return rec, nil
}

func (t *HTTPTransport) List(ctx context.Context, query wire.ListQuery) ([]wire.Record, error) {
	values := url.Values{}
	if query.EmployeeID != "" {
		values.Set("employeeId", query.EmployeeID)
	}
	if query.Date != "" {
		values.Set("date", query.Date)
	}
	if query.Limit > 0 {
		values.Set("limit", strconv.Itoa(query.Limit))
	}
	endpoint := httphandler.AttendancePath
	if encoded := values.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	var list wire.RecordList
	if err := t.call(ctx, http.MethodGet, endpoint, nil, "", &list); err != nil {
		return nil, err
	}
	return list.Records, nil
}

func (t *HTTPTransport) Check(ctx context.Context) error {
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+httphandler.HealthPath, nil)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", attendance.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health status %d", attendance.ErrRemoteUnavailable, resp.StatusCode)
	}
	return nil
}

func (t *HTTPTransport) call(ctx context.Context, method, endpoint string, headers map[string]string, body string, out any) error {
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	}
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", attendance.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", attendance.ErrRemoteUnavailable, err)
	}

	switch resp.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: status %d", attendance.ErrRemoteUnavailable, resp.StatusCode)
	}

	var env wire.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &attendance.RejectedError{Code: "internal", Message: fmt.Sprintf("status %d: undecodable response", resp.StatusCode)}
	}
	if !env.Success || resp.StatusCode >= http.StatusBadRequest {
		code := env.Code
		if code == "" {
			code = "internal"
		}
		return &attendance.RejectedError{Code: code, Message: env.Error}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (t *HTTPTransport) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, t.timeout)
}

var _ Transport = (*HTTPTransport)(nil)

