package deploy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ObjectivityLtd/PSCI/internal/eventstore"
	"github.com/ObjectivityLtd/PSCI/internal/reporting"
)

// TestDeployAgainstManagementAPI runs the full pipeline against an in-memory
// management server: plan from a real project tree, publish over HTTP, record
// events in sqlite.
func TestDeployAgainstManagementAPI(t *testing.T) {
	var mu sync.Mutex
	folders := map[string]bool{}
	items := map[string]string{}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /folders", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		var body struct {
			Path string `json:"path"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if folders[body.Path] {
			http.Error(w, "exists", http.StatusConflict)
			return
		}
		folders[body.Path] = true
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("GET /items/item", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if _, ok := items[r.URL.Query().Get("path")]; !ok {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	record := func(itemType string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			defer mu.Unlock()
			var def struct {
				Name   string `json:"name"`
				Folder string `json:"folder"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&def))
			items[reporting.ItemPath(def.Folder, def.Name)] = itemType
			_, _ = w.Write([]byte(`{}`))
		}
	}
	mux.HandleFunc("PUT /datasources", record("datasource"))
	mux.HandleFunc("PUT /datasets", record("dataset"))
	mux.HandleFunc("PUT /reports", record("report"))
	mux.HandleFunc("POST /items/references", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	store, err := eventstore.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	client := reporting.NewClient(srv.Client(), srv.URL, "integration-token")
	plan := BuildPlan(PlanInput{
		Environment:      "uat",
		Project:          testProject(t),
		Catalog:          client,
		DefaultOverwrite: true,
	})

	result, err := NewDeployer(store, nil).Run(t.Context(), plan)
	require.NoError(t, err)
	assert.Equal(t, "completed", result.Status)

	mu.Lock()
	assert.True(t, folders["/Finance"], "project folder created")
	assert.Equal(t, "datasource", items["/Finance/Data Sources/WarehouseDS"])
	assert.Equal(t, "dataset", items["/Finance/Datasets/SalesData"])
	assert.Equal(t, "report", items["/Finance/SalesSummary"])
	mu.Unlock()

	rec, err := eventstore.ProjectDeployment(t.Context(), store, result.DeploymentID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "completed", rec.Status)
	assert.Len(t, rec.Steps, 4)
}
