package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"netmend/internal/model"
)

func TestClient_StatusAndQueue(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/status":
			json.NewEncoder(w).Encode(StatusResponse{
				State:   model.StateDegraded,
				Online:  true,
				Pending: 2,
			})
		case r.Method == http.MethodPost && r.URL.Path == "/queue":
			var req EnqueueRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if req.URL != "http://api/items" || req.Priority != 4 {
				http.Error(w, "bad payload", http.StatusBadRequest)
				return
			}
			json.NewEncoder(w).Encode(EnqueueResponse{ID: "req-9"})
		case r.Method == http.MethodDelete && r.URL.Path == "/queue":
			if r.URL.Query().Get("id") != "req-9" {
				http.Error(w, "no such request", http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "unexpected route", http.StatusNotFound)
		}
	}))
	defer ts.Close()

	client := NewClient(ts.URL)
	ctx := context.Background()

	st, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.State != model.StateDegraded || !st.Online || st.Pending != 2 {
		t.Fatalf("status=%+v", st)
	}

	enq, err := client.Enqueue(ctx, EnqueueRequest{URL: "http://api/items", Priority: 4})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if enq.ID != "req-9" {
		t.Fatalf("id=%s", enq.ID)
	}

	if err := client.CancelRequest(ctx, "req-9"); err != nil {
		t.Fatalf("CancelRequest: %v", err)
	}
	if err := client.CancelRequest(ctx, "req-404"); err == nil {
		t.Fatal("expected error for unknown id")
	}
}

func TestClient_ErrorIncludesBody(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"url is required"}`, http.StatusBadRequest)
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL).Enqueue(context.Background(), EnqueueRequest{})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); !strings.Contains(got, "url is required") {
		t.Fatalf("err=%q", got)
	}
}
