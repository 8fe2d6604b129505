package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/metricbridge/core/pkg/database"
	"github.com/metricbridge/core/pkg/logger"
	"github.com/metricbridge/core/pkg/models"
	"github.com/metricbridge/core/pkg/models/api"
	"github.com/metricbridge/core/pkg/scheduler"
	"github.com/metricbridge/core/pkg/validation"
)

type stubResolver struct{}

func (stubResolver) SourceProfileExists(ctx context.Context, id string) (bool, error) {
	return id == "src-1", nil
}

func (stubResolver) DestinationProfileExists(ctx context.Context, id string) (bool, error) {
	return id == "dst-1", nil
}

func newTestHandler(t *testing.T) (*Handler, database.JobStore) {
	t.Helper()
	store := database.NewMemoryStore()
	validator := validation.New(store, stubResolver{})
	dispatcher := scheduler.NewStoreDispatcher(store)
	return NewHandler(store, validator, dispatcher, logger.New("jobs-test")), store
}

func createBody(name string) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"name":                   name,
		"source_profile_id":      "src-1",
		"destination_profile_id": "dst-1",
		"config":                 map[string]string{"report": "traffic"},
	})
	return body
}

func doCreate(t *testing.T, h *Handler, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewReader(body))
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	h.Collection(rec, req)
	return rec
}

func decodeJob(t *testing.T, rec *httptest.ResponseRecorder) *models.Job {
	t.Helper()
	var resp struct {
		Success bool        `json:"success"`
		Data    *models.Job `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Data == nil {
		t.Fatal("response carried no job")
	}
	return resp.Data
}

func TestCreateJob(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doCreate(t, h, createBody("nightly-sync"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	job := decodeJob(t, rec)
	if job.Status != models.JobStatusPending {
		t.Errorf("status = %s, want PENDING", job.Status)
	}
	if job.ID == uuid.Nil {
		t.Error("job has no id")
	}
	if job.OwnerID != "user-1" {
		t.Errorf("owner = %q, want user-1", job.OwnerID)
	}
	if job.Slug != "nightly-sync" {
		t.Errorf("slug = %q, want nightly-sync", job.Slug)
	}
	// Absent start time defaults to "now".
	if time.Since(job.StartTime) > time.Minute {
		t.Errorf("start time not defaulted: %v", job.StartTime)
	}
	if !job.Active {
		t.Error("new job should be active")
	}
}

func TestCreateJobValidationFailure(t *testing.T) {
	h, store := newTestHandler(t)

	body, _ := json.Marshal(map[string]interface{}{
		"name":                   "",
		"source_profile_id":      "src-unknown",
		"destination_profile_id": "dst-1",
	})
	rec := doCreate(t, h, body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	var resp api.Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Errors["name"] == "" || resp.Errors["source_profile_id"] == "" {
		t.Errorf("errors = %v, want messages for name and source_profile_id", resp.Errors)
	}

	// Rejected input persists nothing.
	count, err := store.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("store count = %d, want 0", count)
	}
}

func TestCreateJobDuplicateName(t *testing.T) {
	h, _ := newTestHandler(t)

	if rec := doCreate(t, h, createBody("nightly-sync")); rec.Code != http.StatusCreated {
		t.Fatalf("first create status = %d", rec.Code)
	}

	rec := doCreate(t, h, createBody("nightly-sync"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate create status = %d, want 400", rec.Code)
	}

	var resp api.Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Errors["name"] != "Job already exists" {
		t.Errorf("errors = %v, want name collision message", resp.Errors)
	}
}

func TestCancelJob(t *testing.T) {
	h, store := newTestHandler(t)

	rec := doCreate(t, h, createBody("cancel-me"))
	created := decodeJob(t, rec)

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/jobs/%s/cancel", created.ID), nil)
	cancelRec := httptest.NewRecorder()
	h.Item(cancelRec, req)

	if cancelRec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d: %s", cancelRec.Code, cancelRec.Body.String())
	}
	canceled := decodeJob(t, cancelRec)
	if canceled.Status != models.JobStatusCanceled {
		t.Errorf("status = %s, want CANCELED", canceled.Status)
	}

	persisted, err := store.FindByID(context.Background(), created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if persisted.Status != models.JobStatusCanceled {
		t.Errorf("persisted status = %s, want CANCELED", persisted.Status)
	}
}

func TestCancelJobGuards(t *testing.T) {
	h, store := newTestHandler(t)

	completed := &models.Job{
		Name:                 "done",
		SourceProfileID:      "src-1",
		DestinationProfileID: "dst-1",
		OwnerID:              "user-1",
		Status:               models.JobStatusCompleted,
		StartTime:            time.Now(),
	}
	if err := store.Save(context.Background(), completed); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/jobs/%s/cancel", completed.ID), nil)
	rec := httptest.NewRecorder()
	h.Item(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("cancel completed job status = %d, want 400", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/jobs/%s/cancel", uuid.New()), nil)
	rec = httptest.NewRecorder()
	h.Item(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("cancel unknown job status = %d, want 404", rec.Code)
	}
}

func TestDeleteJob(t *testing.T) {
	h, store := newTestHandler(t)
	ctx := context.Background()

	pending := decodeJob(t, doCreate(t, h, createBody("still-pending")))

	// Pending work cannot be deleted.
	req := httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/jobs/%s", pending.ID), nil)
	rec := httptest.NewRecorder()
	h.Item(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("delete pending status = %d, want 400", rec.Code)
	}

	failed := &models.Job{
		Name:                 "failed-job",
		SourceProfileID:      "src-1",
		DestinationProfileID: "dst-1",
		OwnerID:              "user-1",
		Status:               models.JobStatusFailed,
		StartTime:            time.Now(),
	}
	if err := store.Save(ctx, failed); err != nil {
		t.Fatal(err)
	}

	req = httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/jobs/%s", failed.ID), nil)
	rec = httptest.NewRecorder()
	h.Item(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete terminal status = %d: %s", rec.Code, rec.Body.String())
	}

	gone, err := store.FindByID(ctx, failed.ID)
	if err != nil {
		t.Fatal(err)
	}
	if gone != nil {
		t.Error("deleted job still present")
	}

	req = httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/jobs/%s", uuid.New()), nil)
	rec = httptest.NewRecorder()
	h.Item(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("delete unknown status = %d, want 404", rec.Code)
	}
}

func TestListAndCountJobs(t *testing.T) {
	h, _ := newTestHandler(t)

	for i := 0; i < 3; i++ {
		if rec := doCreate(t, h, createBody(fmt.Sprintf("job-%d", i))); rec.Code != http.StatusCreated {
			t.Fatalf("create %d status = %d", i, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/jobs?count=2&page=1&order_by=name&order_dir=asc", nil)
	rec := httptest.NewRecorder()
	h.Collection(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}

	var listResp struct {
		Data []models.Job `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&listResp); err != nil {
		t.Fatal(err)
	}
	if len(listResp.Data) != 2 {
		t.Errorf("page size = %d, want 2", len(listResp.Data))
	}
	if listResp.Data[0].Name != "job-0" {
		t.Errorf("first job = %s, want job-0", listResp.Data[0].Name)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/jobs/count", nil)
	rec = httptest.NewRecorder()
	h.Count(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("count status = %d", rec.Code)
	}

	var countResp struct {
		Data int64 `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&countResp); err != nil {
		t.Fatal(err)
	}
	if countResp.Data != 3 {
		t.Errorf("count = %d, want 3", countResp.Data)
	}
}

func TestItemRejectsBadID(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	h.Item(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
