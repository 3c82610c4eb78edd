package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const sampleDiscovery = `<?xml version="1.0" encoding="UTF-8"?>
<wopi-discovery>
  <net-zone name="external-http">
    <app name="text/plain">
      <action ext="txt" name="edit" urlsrc="https://editor.example/browser/abc/cool.html?"/>
    </app>
    <app name="Settings">
      <action name="settings" urlsrc="https://editor.example/browser/abc/admin.html?"/>
    </app>
  </net-zone>
</wopi-discovery>`

func TestLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/hosting/discovery" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(sampleDiscovery))
	}))
	defer srv.Close()

	eps, err := New(srv.URL).Lookup(context.Background())
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if eps.Editor != "https://editor.example/browser/abc/cool.html?" {
		t.Errorf("Unexpected editor url: %q", eps.Editor)
	}
	if eps.Settings != "https://editor.example/browser/abc/admin.html?" {
		t.Errorf("Unexpected settings url: %q", eps.Settings)
	}
}

func TestLookup_NoTextAction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<wopi-discovery><net-zone/></wopi-discovery>`))
	}))
	defer srv.Close()

	if _, err := New(srv.URL).Lookup(context.Background()); err == nil {
		t.Error("Expected error when the text action is missing")
	}
}

func TestLookup_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := New(srv.URL).Lookup(context.Background()); err == nil {
		t.Error("Expected error for non-200 response")
	}
}
