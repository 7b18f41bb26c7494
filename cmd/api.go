package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/jerrybase-cli/internal/dataset"
	"github.com/sells-group/jerrybase-cli/internal/model"
	"github.com/sells-group/jerrybase-cli/internal/monitoring"
	"github.com/sells-group/jerrybase-cli/internal/store"
)

// api serves the datasets and run log read-only. Datasets are read from disk
// on every request so a concurrent enrich run's checkpoints are visible.
type api struct {
	store        store.Store
	basicPath    string
	detailedPath string
	collector    *monitoring.Collector
	log          *zap.Logger
}

func newAPI(st store.Store, basicPath, detailedPath string) *api {
	return &api{
		store:        st,
		basicPath:    basicPath,
		detailedPath: detailedPath,
		collector:    monitoring.NewCollector(st, basicPath, detailedPath),
		log:          zap.L().With(zap.String("component", "api")),
	}
}

func newRouter(a *api) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", a.health)
	r.Get("/buckets", a.listBuckets)
	r.Get("/buckets/{bucket}", a.getBucket)
	r.Get("/shows/{showID}", a.getShow)
	r.Get("/stats", a.stats)
	r.Get("/runs", a.listRuns)
	r.Get("/runs/{runID}", a.getRun)
	r.Get("/runs/{runID}/failures", a.listFailures)
	return r
}

type bucketCounts struct {
	Bucket   string `json:"bucket"`
	Listed   int    `json:"listed"`
	Enriched int    `json:"enriched"`
}

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) listBuckets(w http.ResponseWriter, _ *http.Request) {
	basic, detailed, ok := a.loadDatasets(w)
	if !ok {
		return
	}

	counts := make([]bucketCounts, 0, len(basic.Buckets()))
	seen := make(map[string]bool)
	for _, b := range basic.Buckets() {
		seen[b] = true
		counts = append(counts, bucketCounts{
			Bucket:   b,
			Listed:   len(basic.Records(b)),
			Enriched: len(detailed.Records(b)),
		})
	}
	for _, b := range detailed.Buckets() {
		if !seen[b] {
			counts = append(counts, bucketCounts{Bucket: b, Enriched: len(detailed.Records(b))})
		}
	}
	writeJSON(w, http.StatusOK, counts)
}

// getBucket returns a bucket's detailed records, falling back to its listing
// records when nothing in it has been enriched yet.
func (a *api) getBucket(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	basic, detailed, ok := a.loadDatasets(w)
	if !ok {
		return
	}

	if recs := detailed.Records(bucket); len(recs) > 0 {
		writeJSON(w, http.StatusOK, map[string]any{"bucket": bucket, "source": "detailed", "records": recs})
		return
	}
	if hasBucket(basic, bucket) {
		recs := basic.Records(bucket)
		if recs == nil {
			recs = []model.BasicRecord{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"bucket": bucket, "source": "basic", "records": recs})
		return
	}
	writeError(w, http.StatusNotFound, "bucket not found")
}

func (a *api) getShow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "showID")
	basic, detailed, ok := a.loadDatasets(w)
	if !ok {
		return
	}

	if rec, bucket, found := detailed.Get(id); found {
		writeJSON(w, http.StatusOK, map[string]any{"bucket": bucket, "enriched": true, "show": rec})
		return
	}
	if rec, bucket, found := basic.Get(id); found {
		writeJSON(w, http.StatusOK, map[string]any{"bucket": bucket, "enriched": false, "show": rec})
		return
	}
	writeError(w, http.StatusNotFound, "show not found")
}

func (a *api) stats(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := intParam(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid hours")
			return
		}
		hours = n
	}

	snap, err := a.collector.Collect(r.Context(), hours)
	if err != nil {
		a.internalError(w, "collect stats", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *api) listRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{
		Kind:   model.RunKind(q.Get("kind")),
		Status: model.RunStatus(q.Get("status")),
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	runs, err := a.store.ListRuns(r.Context(), filter)
	if err != nil {
		a.internalError(w, "list runs", err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (a *api) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := a.store.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		a.internalError(w, "get run", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (a *api) listFailures(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if _, err := a.store.GetRun(r.Context(), runID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		a.internalError(w, "get run", err)
		return
	}

	items, err := a.store.ListFailures(r.Context(), runID)
	if err != nil {
		a.internalError(w, "list failures", err)
		return
	}
	if items == nil {
		items = []model.FailedItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *api) loadDatasets(w http.ResponseWriter) (*dataset.Basic, *dataset.Detailed, bool) {
	basic, err := dataset.Load[model.BasicRecord](a.basicPath)
	if err != nil {
		a.internalError(w, "load basic dataset", err)
		return nil, nil, false
	}
	detailed, err := dataset.Load[model.DetailRecord](a.detailedPath)
	if err != nil {
		a.internalError(w, "load detailed dataset", err)
		return nil, nil, false
	}
	return basic, detailed, true
}

func (a *api) internalError(w http.ResponseWriter, op string, err error) {
	a.log.Error("api: "+op, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func hasBucket(ds *dataset.Basic, bucket string) bool {
	for _, b := range ds.Buckets() {
		if b == bucket {
			return true
		}
	}
	return false
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New("invalid integer")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
