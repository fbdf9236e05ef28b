package dicomweb

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClientRejectsRelativeURL(t *testing.T) {
	if _, err := NewClient(nil, "dicomweb/studies"); err == nil {
		t.Errorf("relative base URL should be rejected")
	}
	if _, err := NewClient(nil, "://bad"); err == nil {
		t.Errorf("malformed base URL should be rejected")
	}
}

func TestTryConfigureServicePrefix(t *testing.T) {
	client, err := NewClient(nil, "http://pacs.example.com/dicomweb")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	tests := []struct {
		prefix string
		want   bool
	}{
		{"wado-rs", true},
		{"/deep/nested/prefix", true},
		{"", false},
		{"   ", false},
		{"http://elsewhere.example.com/wado", false},
		{"http://pacs.example.com/other-root", true},
	}
	for _, tc := range tests {
		if got := client.Wado.TryConfigureServicePrefix(tc.prefix); got != tc.want {
			t.Errorf("TryConfigureServicePrefix(%q) = %t, want %t", tc.prefix, got, tc.want)
		}
	}
}

func TestConfigureServicePrefixError(t *testing.T) {
	client, err := NewClient(nil, "http://pacs.example.com/")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := client.ConfigureServicePrefix(ServiceQido, "qido-rs"); err != nil {
		t.Errorf("valid prefix rejected: %v", err)
	}
	if err := client.ConfigureServicePrefix(ServiceStow, ""); err == nil {
		t.Errorf("empty prefix should return an error")
	}
}

func TestServicePrefixAndAuthApplied(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		io.WriteString(w, "[]")
	}))
	defer srv.Close()

	client, err := NewClient(srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	client.ConfigureAuthentication("Bearer token-123")
	if err := client.ConfigureServicePrefix(ServiceQido, "qido-rs"); err != nil {
		t.Fatalf("ConfigureServicePrefix: %v", err)
	}

	for range SearchForStudies[Dataset](context.Background(), client.Qido, nil) {
	}
	if gotPath != "/qido-rs/studies/" {
		t.Errorf("path = %q, want /qido-rs/studies/", gotPath)
	}
	if gotAuth != "Bearer token-123" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}
