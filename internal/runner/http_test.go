package runner

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/Shipyard/internal/domain"
)

func httpRequest(params map[string]string) *Request {
	return &Request{
		RunID:     uuid.New(),
		Job:       "notify",
		Label:     "notify",
		Trigger:   domain.Trigger{Event: domain.EventTag, Ref: "refs/tags/v1.0.0"},
		Params:    params,
		Workspace: NewWorkspace(""),
	}
}

func TestHTTPAction_PostWithHeaders(t *testing.T) {
	var gotMethod, gotAuth, gotType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	action := NewHTTPAction(srv.Client())
	res, err := action.Execute(context.Background(), httpRequest(map[string]string{
		"url":                  srv.URL,
		"body":                 `{"tag":"v1.0.0"}`,
		"header.Authorization": "Bearer t0ken",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.ExitCode != 0 {
		t.Fatalf("expected success, got exit %d: %s", res.ExitCode, res.Error)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("expected POST, got %s", gotMethod)
	}
	if gotAuth != "Bearer t0ken" {
		t.Errorf("expected auth header, got %q", gotAuth)
	}
	if gotType != "application/json" {
		t.Errorf("expected json content type, got %q", gotType)
	}
	if gotBody != `{"tag":"v1.0.0"}` {
		t.Errorf("unexpected body %q", gotBody)
	}
	if res.Outputs["status_code"] != "202" || res.Outputs["body"] != `{"ok":true}` {
		t.Errorf("unexpected outputs %v", res.Outputs)
	}
}

func TestHTTPAction_UnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	action := NewHTTPAction(srv.Client())

	res, err := action.Execute(context.Background(), httpRequest(map[string]string{
		"url":           srv.URL,
		"expect_status": "204",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExitCode == 0 {
		t.Fatal("expected failure for status 200 when 204 is expected")
	}
	if res.Outputs["status_code"] != "200" {
		t.Errorf("expected status_code 200, got %q", res.Outputs["status_code"])
	}
}

func TestHTTPAction_InvalidParams(t *testing.T) {
	action := NewHTTPAction(nil)

	for _, params := range []map[string]string{
		{},
		{"url": "http://localhost", "expect_status": "ok"},
		{"url": "http://localhost", "timeout_sec": "-1"},
	} {
		_, err := action.Execute(context.Background(), httpRequest(params))
		if !errors.Is(err, ErrInvalidParams) {
			t.Errorf("params %v: expected ErrInvalidParams, got %v", params, err)
		}
	}
}
