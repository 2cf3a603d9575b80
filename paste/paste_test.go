package paste

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestUploadReturnsPasteURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		if r.FormValue("api_option") != "paste" || r.FormValue("api_dev_key") != "key" {
			t.Fatalf("unexpected form: %v", r.Form)
		}
		if r.FormValue("api_paste_code") != "fixed stuff" {
			t.Fatalf("paste body = %q", r.FormValue("api_paste_code"))
		}
		w.Write([]byte("https://pastebin.com/abc123"))
	}))
	defer srv.Close()

	c := New(srv.URL, "key")
	url, err := c.Upload(context.Background(), "fixed stuff", "Changelog")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if url != "https://pastebin.com/abc123" {
		t.Fatalf("url = %q", url)
	}
}

func TestUploadSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Bad API request, invalid api_dev_key"))
	}))
	defer srv.Close()

	c := New(srv.URL, "bad")
	if _, err := c.Upload(context.Background(), "text", "t"); err == nil {
		t.Fatal("expected error for non-URL response")
	}
}

func TestUploadSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, "key")
	if _, err := c.Upload(context.Background(), "text", "t"); err == nil {
		t.Fatal("expected error for 502")
	}
}
