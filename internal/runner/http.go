package runner

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	maxResponseBody    = 1 << 20
	headerParamPrefix  = "header."
)

// HTTPAction — действие "http": запрос к внешнему сервису,
// например уведомление о релизе.
//
// Параметры:
//   - url (обязательный)
//   - method — по умолчанию GET, с body — POST
//   - body — тело запроса
//   - content_type — по умолчанию application/json, если задан body
//   - header.<Name> — заголовок запроса
//   - expect_status — ожидаемый код ответа; по умолчанию любой 2xx
//   - timeout_sec — таймаут запроса (default: 30)
//
// Outputs: status_code, body (усечённое).
type HTTPAction struct {
	Client *http.Client
}

// NewHTTPAction создаёт действие. nil client — http.DefaultClient.
func NewHTTPAction(client *http.Client) *HTTPAction {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPAction{Client: client}
}

// Name возвращает имя действия.
func (a *HTTPAction) Name() string { return "http" }

// Execute выполняет запрос.
func (a *HTTPAction) Execute(ctx context.Context, req *Request) (*Result, error) {
	url, err := req.RequireParam("url")
	if err != nil {
		return nil, err
	}

	body := req.Param("body", "")
	method := http.MethodGet
	if body != "" {
		method = http.MethodPost
	}
	method = strings.ToUpper(req.Param("method", method))

	expect := 0
	if raw := req.Param("expect_status", ""); raw != "" {
		if expect, err = strconv.Atoi(raw); err != nil {
			return nil, fmt.Errorf("%w: expect_status %q is not a number", ErrInvalidParams, raw)
		}
	}

	timeout := defaultHTTPTimeout
	if raw := req.Param("timeout_sec", ""); raw != "" {
		sec, err := strconv.Atoi(raw)
		if err != nil || sec <= 0 {
			return nil, fmt.Errorf("%w: timeout_sec %q", ErrInvalidParams, raw)
		}
		timeout = time.Duration(sec) * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if body != "" {
		httpReq.Header.Set("Content-Type", req.Param("content_type", "application/json"))
	}
	for key, value := range req.Params {
		if name, ok := strings.CutPrefix(key, headerParamPrefix); ok && name != "" {
			httpReq.Header.Set(name, value)
		}
	}

	resp, err := a.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	outputs := map[string]string{
		"status_code": strconv.Itoa(resp.StatusCode),
		"body":        truncate(strings.TrimSpace(string(data)), maxOutputBytes),
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if expect != 0 {
		ok = resp.StatusCode == expect
	}
	if !ok {
		return &Result{
			ExitCode: 1,
			Outputs:  outputs,
			Error:    fmt.Sprintf("%s %s: HTTP %d", method, url, resp.StatusCode),
		}, nil
	}

	req.Log().Info("http request done", "method", method, "url", url, "status", resp.StatusCode)
	return Success(outputs), nil
}
