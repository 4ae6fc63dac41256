package reporting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/ObjectivityLtd/PSCI/internal/foundation/errors"
)

// fakeServer is a minimal in-memory management API used by the client tests.
type fakeServer struct {
	mu      sync.Mutex
	folders map[string]bool
	items   map[string]string // path -> type
	auth    string
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		folders: map[string]bool{"/": true},
		items:   make(map[string]string),
	}
}

func (f *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /folders", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.auth = r.Header.Get("Authorization")
		var body struct {
			Path string `json:"path"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if f.folders[body.Path] {
			http.Error(w, "folder exists", http.StatusConflict)
			return
		}
		f.folders[body.Path] = true
		w.WriteHeader(http.StatusCreated)
	})

	mux.HandleFunc("PUT /datasources", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var def DataSourceDefinition
		_ = json.NewDecoder(r.Body).Decode(&def)
		p := ItemPath(def.Folder, def.Name)
		if _, exists := f.items[p]; exists && !def.Overwrite {
			http.Error(w, "item exists", http.StatusConflict)
			return
		}
		f.items[p] = "datasource"
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("PUT /reports", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var def ReportDefinition
		_ = json.NewDecoder(r.Body).Decode(&def)
		p := ItemPath(def.Folder, def.Name)
		if _, exists := f.items[p]; exists && !def.Overwrite {
			http.Error(w, "item exists", http.StatusConflict)
			return
		}
		f.items[p] = "report"
		_ = json.NewEncoder(w).Encode(publishResponse{
			Warnings: []Warning{{Code: "rsMissingParameter", Message: "parameter default not set"}},
		})
	})

	mux.HandleFunc("GET /items/item", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		p := r.URL.Query().Get("path")
		if f.folders[p] {
			w.WriteHeader(http.StatusOK)
			return
		}
		if _, ok := f.items[p]; ok {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	})

	mux.HandleFunc("GET /items", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		prefix := r.URL.Query().Get("path")
		if prefix != "/" {
			prefix += "/"
		}
		var paths []string
		for p := range f.items {
			if strings.HasPrefix(p, prefix) {
				paths = append(paths, p)
			}
		}
		sort.Strings(paths)

		// Two items per page; the page token is the next offset.
		start := 0
		if pg := r.URL.Query().Get("page"); pg != "" {
			start, _ = strconv.Atoi(pg)
		}
		end := min(start+2, len(paths))

		var resp listResponse
		for _, p := range paths[start:end] {
			resp.Items = append(resp.Items, CatalogItem{Name: path.Base(p), Path: p, Type: f.items[p]})
		}
		if end < len(paths) {
			resp.NextPage = strconv.Itoa(end)
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	mux.HandleFunc("DELETE /items", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		p := r.URL.Query().Get("path")
		if _, ok := f.items[p]; !ok {
			http.NotFound(w, r)
			return
		}
		delete(f.items, p)
		w.WriteHeader(http.StatusOK)
	})

	return mux
}

func newTestClient(t *testing.T) (*Client, *fakeServer) {
	t.Helper()
	fake := newFakeServer()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)
	return NewClient(srv.Client(), srv.URL, "test-token"), fake
}

func TestEnsureFolderCreatesParents(t *testing.T) {
	client, fake := newTestClient(t)

	if err := client.EnsureFolder(t.Context(), "/Finance/Data Sources"); err != nil {
		t.Fatalf("EnsureFolder failed: %v", err)
	}
	if !fake.folders["/Finance"] || !fake.folders["/Finance/Data Sources"] {
		t.Errorf("parent folders not created: %v", fake.folders)
	}

	// Second call hits the already-exists branch and must still succeed.
	if err := client.EnsureFolder(t.Context(), "/Finance/Data Sources"); err != nil {
		t.Fatalf("EnsureFolder on existing folder failed: %v", err)
	}
}

func TestCreateDataSourceOverwriteBranch(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := t.Context()

	def := DataSourceDefinition{Name: "WarehouseDS", Folder: "/Finance", ConnectionString: "Server=sql01"}
	if err := client.CreateDataSource(ctx, def); err != nil {
		t.Fatalf("first create failed: %v", err)
	}

	// Exists + no overwrite: conflict surfaces as already_exists.
	err := client.CreateDataSource(ctx, def)
	if !IsAlreadyExists(err) {
		t.Fatalf("expected already-exists error, got %v", err)
	}

	def.Overwrite = true
	if err := client.CreateDataSource(ctx, def); err != nil {
		t.Fatalf("overwrite create failed: %v", err)
	}
}

func TestPublishReportReturnsWarnings(t *testing.T) {
	client, _ := newTestClient(t)

	warnings, err := client.PublishReport(t.Context(), ReportDefinition{
		Name:       "SalesSummary",
		Folder:     "/Finance",
		Definition: []byte("<definition/>"),
		Overwrite:  true,
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if len(warnings) != 1 || warnings[0].Code != "rsMissingParameter" {
		t.Errorf("unexpected warnings: %v", warnings)
	}
}

func TestItemExists(t *testing.T) {
	client, fake := newTestClient(t)
	ctx := t.Context()

	exists, err := client.ItemExists(ctx, "/Finance/SalesSummary")
	if err != nil {
		t.Fatalf("ItemExists failed: %v", err)
	}
	if exists {
		t.Error("item should not exist yet")
	}

	fake.mu.Lock()
	fake.items["/Finance/SalesSummary"] = "report"
	fake.mu.Unlock()

	exists, err = client.ItemExists(ctx, "/Finance/SalesSummary")
	if err != nil {
		t.Fatalf("ItemExists failed: %v", err)
	}
	if !exists {
		t.Error("item should exist")
	}
}

func TestListChildrenFollowsPages(t *testing.T) {
	client, fake := newTestClient(t)

	fake.mu.Lock()
	for _, name := range []string{"Alpha", "Bravo", "Charlie", "Delta", "Echo"} {
		fake.items["/Finance/"+name] = "report"
	}
	fake.mu.Unlock()

	items, err := client.ListChildren(t.Context(), "/Finance")
	if err != nil {
		t.Fatalf("ListChildren failed: %v", err)
	}
	if len(items) != 5 {
		t.Fatalf("expected 5 items across pages, got %d", len(items))
	}
	if items[0].Name != "Alpha" || items[4].Name != "Echo" {
		t.Errorf("page order lost: %+v", items)
	}
}

func TestDeleteMissingItemIsNoError(t *testing.T) {
	client, _ := newTestClient(t)
	if err := client.DeleteItem(t.Context(), "/Finance/Gone"); err != nil {
		t.Fatalf("deleting missing item should not fail: %v", err)
	}
}

func TestServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "catalog database unavailable", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	client := NewClient(srv.Client(), srv.URL, "")

	err := client.EnsureFolder(t.Context(), "/Finance")
	if err == nil {
		t.Fatal("expected error from 503 response")
	}
	classified, ok := errors.AsClassified(err)
	if !ok {
		t.Fatalf("expected classified error, got %T", err)
	}
	if !classified.CanRetry() {
		t.Errorf("5xx response should be retryable: %v", err)
	}
}

func TestConflictIsNotRetryable(t *testing.T) {
	client, _ := newTestClient(t)
	def := DataSourceDefinition{Name: "WarehouseDS", Folder: "/Finance"}
	if err := client.CreateDataSource(t.Context(), def); err != nil {
		t.Fatalf("first create failed: %v", err)
	}

	err := client.CreateDataSource(t.Context(), def)
	classified, ok := errors.AsClassified(err)
	if !ok {
		t.Fatalf("expected classified error, got %T", err)
	}
	if classified.CanRetry() {
		t.Error("conflict must stay non-retryable so overwrite branching decides")
	}
}

func TestAuthHeaderSent(t *testing.T) {
	client, fake := newTestClient(t)
	_ = client.EnsureFolder(context.Background(), "/X")

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.auth != "Bearer test-token" {
		t.Errorf("expected bearer auth header, got %q", fake.auth)
	}
}

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"Finance":            "/Finance",
		"/Finance/":          "/Finance",
		"\\Finance\\Reports": "/Finance/Reports",
		"":                   "/",
		"/":                  "/",
	}
	for in, want := range cases {
		if got := normalizePath(in); got != want {
			t.Errorf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}
