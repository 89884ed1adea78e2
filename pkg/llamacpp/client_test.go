package llamacpp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestQuery(t *testing.T) {
	var gotAuth string
	var gotReq ChatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"{\"mainBody\":{}}"}}]}`))
	}))
	defer server.Close()

	c, err := NewClient(server.URL+"/", WithAPIKey("secret"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	out, err := c.Query(context.Background(), "vlm", "find regions", "iVBORw0KGgo=")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if out != `{"mainBody":{}}` {
		t.Errorf("Unexpected answer %q", out)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Expected bearer key, got %q", gotAuth)
	}
	if gotReq.Model != "vlm" || len(gotReq.Messages) != 1 {
		t.Fatalf("Unexpected request %+v", gotReq)
	}
	parts, ok := gotReq.Messages[0].Content.([]interface{})
	if !ok || len(parts) != 2 {
		t.Fatalf("Expected text and image parts, got %v", gotReq.Messages[0].Content)
	}
	image := parts[1].(map[string]interface{})["image_url"].(map[string]interface{})
	if !strings.HasPrefix(image["url"].(string), "data:image/png;base64,") {
		t.Errorf("Expected png data URL, got %v", image["url"])
	}
}

func TestQueryContentParts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":[{"type":"text","text":"answer"}]}}]}`))
	}))
	defer server.Close()

	c, _ := NewClient(server.URL)
	out, err := c.Query(context.Background(), "vlm", "p", "")
	if err != nil || out != "answer" {
		t.Errorf("Expected answer, got %q (%v)", out, err)
	}
}

func TestQueryErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"http error", http.StatusUnauthorized, `{"error":"bad key"}`},
		{"no choices", http.StatusOK, `{"choices":[]}`},
		{"empty content", http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":"  "}}]}`},
		{"not json", http.StatusOK, `<html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c, _ := NewClient(server.URL)
			if _, err := c.Query(context.Background(), "vlm", "p", ""); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestNewClientRejectsScheme(t *testing.T) {
	if _, err := NewClient("localhost:8080"); err == nil {
		t.Error("Expected missing scheme to fail")
	}
}
