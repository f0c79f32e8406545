package work

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPHandler_Name(t *testing.T) {
	h := NewHTTPHandler()
	if h.Name() != "http_request" {
		t.Errorf("Name() = %q, want %q", h.Name(), "http_request")
	}
}

func TestHTTPHandler_GET_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			t.Errorf("Expected GET request, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"message": "success",
			"status":  "ok",
		})
	}))
	defer server.Close()

	h := NewHTTPHandler()
	ctx := context.Background()

	result, err := h.Call(ctx, map[string]any{
		"method": "GET",
		"url":    server.URL,
	})
	if err != nil {
		t.Fatalf("Call() error = %v, want nil", err)
	}

	statusCode, ok := result["status_code"].(int)
	if !ok {
		t.Fatalf("status_code has type %T, want int", result["status_code"])
	}
	if statusCode != 200 {
		t.Errorf("status_code = %d, want 200", statusCode)
	}

	body, ok := result["body"].(string)
	if !ok {
		t.Fatalf("body has type %T, want string", result["body"])
	}

	var bodyData map[string]string
	if err := json.Unmarshal([]byte(body), &bodyData); err != nil {
		t.Fatalf("Failed to parse response body: %v", err)
	}
	if bodyData["message"] != "success" {
		t.Errorf("body message = %q, want %q", bodyData["message"], "success")
	}
}

func TestHTTPHandler_POST_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST request, got %s", r.Method)
		}

		var reqBody map[string]any
		if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
			t.Errorf("Failed to decode request body: %v", err)
		}
		if reqBody["name"] != "test" {
			t.Errorf("Request body name = %v, want %q", reqBody["name"], "test")
		}

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 123, "created": true})
	}))
	defer server.Close()

	h := NewHTTPHandler()
	ctx := context.Background()

	bodyJSON, _ := json.Marshal(map[string]any{"name": "test", "age": 30})

	result, err := h.Call(ctx, map[string]any{
		"method": "POST",
		"url":    server.URL,
		"body":   string(bodyJSON),
		"headers": map[string]any{
			"Content-Type": "application/json",
		},
	})
	if err != nil {
		t.Fatalf("Call() error = %v, want nil", err)
	}

	statusCode := result["status_code"].(int)
	if statusCode != 201 {
		t.Errorf("status_code = %d, want 201", statusCode)
	}
}

func TestHTTPHandler_WithHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if authHeader := r.Header.Get("Authorization"); authHeader != "Bearer token123" {
			t.Errorf("Authorization header = %q, want %q", authHeader, "Bearer token123")
		}
		if userAgent := r.Header.Get("User-Agent"); userAgent != "CustomAgent/1.0" {
			t.Errorf("User-Agent header = %q, want %q", userAgent, "CustomAgent/1.0")
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("authenticated"))
	}))
	defer server.Close()

	h := NewHTTPHandler()
	ctx := context.Background()

	result, err := h.Call(ctx, map[string]any{
		"method": "GET",
		"url":    server.URL,
		"headers": map[string]any{
			"Authorization": "Bearer token123",
			"User-Agent":    "CustomAgent/1.0",
		},
	})
	if err != nil {
		t.Fatalf("Call() error = %v, want nil", err)
	}

	if body := result["body"].(string); body != "authenticated" {
		t.Errorf("body = %q, want %q", body, "authenticated")
	}
}

func TestHTTPHandler_ContextTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(2 * time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	h := NewHTTPHandler()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := h.Call(ctx, map[string]any{"method": "GET", "url": server.URL})
	if err == nil {
		t.Error("Call() error = nil, want timeout error")
	}
}

func TestHTTPHandler_Error_InvalidURL(t *testing.T) {
	h := NewHTTPHandler()
	_, err := h.Call(context.Background(), map[string]any{"method": "GET", "url": "://invalid-url"})
	if err == nil {
		t.Error("Call() error = nil, want error for invalid URL")
	}
}

func TestHTTPHandler_Error_MissingURL(t *testing.T) {
	h := NewHTTPHandler()
	_, err := h.Call(context.Background(), map[string]any{"method": "GET"})
	if err == nil {
		t.Error("Call() error = nil, want error for missing URL")
	}
}

func TestHTTPHandler_Error_UnsupportedMethod(t *testing.T) {
	h := NewHTTPHandler()
	_, err := h.Call(context.Background(), map[string]any{"method": "DELETE", "url": "http://example.com"})
	if err == nil {
		t.Error("Call() error = nil, want error for unsupported method")
	}
}

func TestHTTPHandler_Error_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal Server Error"))
	}))
	defer server.Close()

	h := NewHTTPHandler()
	result, err := h.Call(context.Background(), map[string]any{"method": "GET", "url": server.URL})
	if err != nil {
		t.Fatalf("Call() error = %v, want nil (errors returned in response)", err)
	}

	if statusCode := result["status_code"].(int); statusCode != 500 {
		t.Errorf("status_code = %d, want 500", statusCode)
	}
	if body := result["body"].(string); body != "Internal Server Error" {
		t.Errorf("body = %q, want %q", body, "Internal Server Error")
	}
}

func TestHTTPHandler_DefaultMethod(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			t.Errorf("Expected GET (default method), got %s", r.Method)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	h := NewHTTPHandler()
	_, err := h.Call(context.Background(), map[string]any{"url": server.URL})
	if err != nil {
		t.Fatalf("Call() error = %v, want nil", err)
	}
}
