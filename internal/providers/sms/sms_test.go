package sms

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSendCodeLookup(t *testing.T) {
	var gotPath, gotReceptor, gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotReceptor = r.URL.Query().Get("receptor")
		gotToken = r.URL.Query().Get("token")
		_, _ = io.WriteString(w, `{"return":{"status":200,"message":"تایید شد"},"entries":[]}`)
	}))
	defer srv.Close()

	c, err := NewClient(Options{APIKey: "KEY", BaseURL: srv.URL, HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := c.SendCode(context.Background(), "+989121234567", "482913"); err != nil {
		t.Fatalf("SendCode: %v", err)
	}
	if gotPath != "/v1/KEY/verify/lookup.json" {
		t.Fatalf("path = %s", gotPath)
	}
	if gotReceptor != "09121234567" || gotToken != "482913" {
		t.Fatalf("receptor=%s token=%s", gotReceptor, gotToken)
	}
}

func TestSendCodeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"return":{"status":418,"message":"credit not enough"}}`)
	}))
	defer srv.Close()

	c, _ := NewClient(Options{APIKey: "KEY", BaseURL: srv.URL, HTTPClient: srv.Client()})
	err := c.SendCode(context.Background(), "+989121234567", "1")
	if err == nil || !strings.Contains(err.Error(), "418") {
		t.Fatalf("err = %v", err)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(Options{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMaskPhone(t *testing.T) {
	if got := maskPhone("+989121234567"); got != "+98912****567" {
		t.Fatalf("mask = %s", got)
	}
}
