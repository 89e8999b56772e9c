package kie

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"tasvir/internal/domain"
	"tasvir/internal/generation"
	"tasvir/pkg/retry"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(Options{
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
		Retry:      retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond},
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestCreateImageTaskPayload(t *testing.T) {
	var got imageRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != imageGeneratePath {
			t.Fatalf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Fatalf("authorization = %q", auth)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		_, _ = io.WriteString(w, `{"code":200,"msg":"success","data":{"taskId":"img-123"}}`)
	})

	id, err := client.CreateTask(context.Background(), generation.CreateRequest{
		Prompt:      "a caravanserai at dusk",
		NumImages:   2,
		Mode:        domain.TaskModeImage,
		ImageURLs:   []string{"https://cdn/src.png"},
		CallbackURL: "https://api.tasvir.test/v1/callbacks/generation?task=t1&sig=x",
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if id != "img-123" {
		t.Fatalf("task id = %q", id)
	}
	if got.NVariants != 2 || got.Size != "1:1" || len(got.FilesURL) != 1 {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if got.CallBackURL == "" {
		t.Fatalf("callback url missing")
	}
}

func TestCreateVideoTaskUsesVeo(t *testing.T) {
	var path string
	var got videoRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = io.WriteString(w, `{"code":200,"data":{"taskId":"veo-9"}}`)
	})
	id, err := client.CreateTask(context.Background(), generation.CreateRequest{Prompt: "waves", NumImages: 1, Mode: domain.TaskModeVideo})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if path != videoGeneratePath || id != "veo-9" || got.Model != "veo3_fast" {
		t.Fatalf("path=%s id=%s model=%s", path, id, got.Model)
	}
}

func TestCreateTaskFailuresAreProviderUnavailable(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"http 500": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		},
		"code 402": func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"code":402,"msg":"insufficient account credits"}`)
		},
		"no task id": func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"code":200,"data":{}}`)
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			client := newTestClient(t, h)
			_, err := client.CreateTask(context.Background(), generation.CreateRequest{Prompt: "x", NumImages: 1})
			if !errors.Is(err, domain.ErrProviderUnavailable) {
				t.Fatalf("err = %v, want ErrProviderUnavailable", err)
			}
		})
	}

	client, _ := NewClient(Options{})
	if _, err := client.CreateTask(context.Background(), generation.CreateRequest{Prompt: "x"}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err = %v, want ErrMissingAPIKey", err)
	}
}

func TestGetTaskStatusRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != imageRecordPath || r.URL.Query().Get("taskId") != "img-1" {
			t.Fatalf("unexpected request %s", r.URL)
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `{"code":200,"data":{"taskId":"img-1","successFlag":1,"response":{"resultUrls":["https://cdn/1.png","https://cdn/2.png"]}}}`)
	})

	st, err := client.GetTaskStatus(context.Background(), domain.TaskModeImage, "img-1")
	if err != nil {
		t.Fatalf("GetTaskStatus: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
	if st.SuccessFlag != generation.FlagSuccess || len(st.ResultURLs) != 2 {
		t.Fatalf("status = %+v", st)
	}
}

func TestGetTaskStatusDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})
	if _, err := client.GetTaskStatus(context.Background(), domain.TaskModeVideo, "veo-1"); err == nil {
		t.Fatalf("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestGetTaskStatusStringFlag(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != videoRecordPath {
			t.Fatalf("path = %s", r.URL.Path)
		}
		_, _ = io.WriteString(w, `{"code":200,"data":{"successFlag":"3","errorMessage":"quota"}}`)
	})
	st, err := client.GetTaskStatus(context.Background(), domain.TaskModeVideo, "veo-2")
	if err != nil {
		t.Fatalf("GetTaskStatus: %v", err)
	}
	if st.SuccessFlag != generation.FlagGenerateError || st.ErrorMessage != "quota" || st.ProviderTaskID != "veo-2" {
		t.Fatalf("status = %+v", st)
	}
}

func TestErrorBodyIsCutOnCharacterBoundary(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "x"+strings.Repeat("سرویس در دسترس نیست ", 200))
	})
	_, err := client.CreateTask(context.Background(), generation.CreateRequest{Prompt: "a rug", NumImages: 1, Mode: domain.TaskModeImage})
	if err == nil {
		t.Fatal("expected error")
	}
	if !utf8.ValidString(err.Error()) {
		t.Fatalf("error message is not valid UTF-8")
	}
}
