package syncengine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/iliyamo/agency-portal/internal/model"
)

func TestHTTPClientSendsBearerAndCorrelationID(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/api/projects" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("expected bearer header, got %q", got)
		}
		if r.Header.Get("X-Correlation-Id") == "" {
			t.Errorf("expected correlation id")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{"id":"p1","clientId":"c1","title":"Site","stage":"Design","progressPercent":40,"status":"active"},
			{"id":"p2","clientId":{"id":"c2","name":"Omar","email":"o@example.com"},"title":"App","stage":"Discovery","progressPercent":20,"status":"active"}]`)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL+"/api/", nil)
	projects, err := client.ListProjects(context.Background(), "tok")
	if err != nil {
		t.Fatalf("list projects: %v", err)
	}
	if len(projects) != 2 || calls.Load() != 1 {
		t.Fatalf("expected 2 projects in one call, got %d in %d", len(projects), calls.Load())
	}
	if projects[0].ClientID.ID() != "c1" {
		t.Fatalf("expected reference client c1, got %q", projects[0].ClientID.ID())
	}
	if s, ok := projects[1].ClientID.Embedded(); !ok || s.Name != "Omar" || projects[1].ClientID.ID() != "c2" {
		t.Fatalf("expected embedded client Omar, got %+v", projects[1].ClientID)
	}
}

func TestHTTPClientMapsErrorBodies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/me":
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"message":"User unauthorized or deactivated"}`)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer server.Close()
	client := NewHTTPClient(server.URL+"/api", nil)

	_, err := client.Me(context.Background(), "tok")
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusUnauthorized || httpErr.Message != "User unauthorized or deactivated" {
		t.Fatalf("expected 401 with message, got %v", err)
	}
	if !isUnauthorized(err) {
		t.Fatalf("expected unauthorized classification")
	}

	_, err = client.ListFiles(context.Background(), "tok", "p1")
	if StatusCode(err) != http.StatusBadGateway || err.Error() != "http 502: Bad Gateway" {
		t.Fatalf("expected 502 with status text, got %v", err)
	}
}

func TestHTTPClientPostsMessageAndSubscription(t *testing.T) {
	var bodies []map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		bodies = append(bodies, body)
		switch r.URL.Path {
		case "/api/messages":
			if r.Header.Get("Authorization") == "" {
				t.Errorf("expected bearer on message post")
			}
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"id":"m1","projectId":"p1","text":"hi","isSystem":false}`)
		case "/api/public/subscribe":
			if r.Header.Get("Authorization") != "" {
				t.Errorf("expected no bearer on a public form")
			}
			_, _ = io.WriteString(w, `{"success":true}`)
		}
	}))
	defer server.Close()
	client := NewHTTPClient(server.URL+"/api", nil)

	m, err := client.CreateMessage(context.Background(), "tok", "p1", "hi", false)
	if err != nil {
		t.Fatalf("create message: %v", err)
	}
	if m.ID != "m1" || m.Text != "hi" {
		t.Fatalf("unexpected message %+v", m)
	}
	if err := client.Subscribe(context.Background(), "a@b.co"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if len(bodies) != 2 || bodies[0]["projectId"] != "p1" || bodies[0]["isSystem"] != false || bodies[1]["email"] != "a@b.co" {
		t.Fatalf("unexpected request bodies %v", bodies)
	}
}

func TestHTTPClientUploadsMultipart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/files/upload" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(model.FileMeta{Name: header.Filename, Size: strconv.Itoa(len(data)), URL: "http://files.test/" + header.Filename})
	}))
	defer server.Close()
	client := NewHTTPClient(server.URL+"/api", nil)

	meta, err := client.UploadFile(context.Background(), "tok", "notes.txt", strings.NewReader("12345"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if meta.Name != "notes.txt" || meta.Size != "5" || meta.URL != "http://files.test/notes.txt" {
		t.Fatalf("unexpected meta %+v", meta)
	}
}
