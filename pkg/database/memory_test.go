package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/metricbridge/core/pkg/models"
)

func testJob(name string) *models.Job {
	return &models.Job{
		Name:                 name,
		Slug:                 name,
		SourceProfileID:      "src-1",
		DestinationProfileID: "dst-1",
		OwnerID:              "user-1",
		Status:               models.JobStatusPending,
		StartTime:            time.Now(),
		Active:               true,
	}
}

func TestMemoryStoreSaveAssignsIdentity(t *testing.T) {
	store := NewMemoryStore()
	job := testJob("sync-a")

	if err := store.Save(context.Background(), job); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if job.ID == uuid.Nil {
		t.Error("Save() did not assign an id")
	}
	if job.CreatedAt.IsZero() || job.UpdatedAt.IsZero() {
		t.Error("Save() did not set timestamps")
	}
}

func TestMemoryStoreDuplicateName(t *testing.T) {
	store := NewMemoryStore()

	if err := store.Save(context.Background(), testJob("sync-a")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	err := store.Save(context.Background(), testJob("sync-a"))
	if !errors.Is(err, ErrDuplicateName) {
		t.Errorf("Save() duplicate error = %v, want ErrDuplicateName", err)
	}
}

func TestMemoryStoreUpdate(t *testing.T) {
	store := NewMemoryStore()
	job := testJob("sync-a")
	if err := store.Save(context.Background(), job); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	job.Status = models.JobStatusRunning
	if err := store.Update(context.Background(), job); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := store.FindByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if got.Status != models.JobStatusRunning {
		t.Errorf("status = %s, want RUNNING", got.Status)
	}

	unknown := testJob("ghost")
	unknown.ID = uuid.New()
	if err := store.Update(context.Background(), unknown); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update() unknown error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreFindByIDAbsent(t *testing.T) {
	store := NewMemoryStore()

	job, err := store.FindByID(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if job != nil {
		t.Errorf("FindByID() = %v, want nil", job)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore()
	job := testJob("sync-a")
	if err := store.Save(context.Background(), job); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := store.Delete(context.Background(), job.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete(context.Background(), job.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}

	// The name is free again once the job is gone.
	if err := store.Save(context.Background(), testJob("sync-a")); err != nil {
		t.Errorf("Save() after delete error = %v", err)
	}
}

func TestMemoryStoreExistsByName(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Save(context.Background(), testJob("sync-a")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	exists, err := store.ExistsByName(context.Background(), "sync-a")
	if err != nil || !exists {
		t.Errorf("ExistsByName(sync-a) = %v, %v, want true, nil", exists, err)
	}

	// Exact, case-sensitive match.
	exists, err = store.ExistsByName(context.Background(), "Sync-A")
	if err != nil || exists {
		t.Errorf("ExistsByName(Sync-A) = %v, %v, want false, nil", exists, err)
	}
}

func TestMemoryStoreDueForScheduling(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	pending := testJob("pending")
	if err := store.Save(ctx, pending); err != nil {
		t.Fatal(err)
	}

	recurringRunning := testJob("recurring-running")
	recurringRunning.Status = models.JobStatusRunning
	recurringRunning.RepeatPeriod = "daily"
	if err := store.Save(ctx, recurringRunning); err != nil {
		t.Fatal(err)
	}

	completed := testJob("completed")
	completed.Status = models.JobStatusCompleted
	completed.Active = false
	if err := store.Save(ctx, completed); err != nil {
		t.Fatal(err)
	}

	canceledRecurring := testJob("canceled-recurring")
	canceledRecurring.Status = models.JobStatusCanceled
	canceledRecurring.RepeatPeriod = "daily"
	canceledRecurring.Active = false
	if err := store.Save(ctx, canceledRecurring); err != nil {
		t.Fatal(err)
	}

	due, err := store.DueForScheduling(ctx)
	if err != nil {
		t.Fatalf("DueForScheduling() error = %v", err)
	}

	if len(due) != 2 {
		t.Fatalf("due set size = %d, want 2", len(due))
	}
	names := map[string]bool{}
	for _, job := range due {
		names[job.Name] = true
	}
	if !names["pending"] || !names["recurring-running"] {
		t.Errorf("due set = %v, want pending and recurring-running", names)
	}
}

func TestMemoryStoreListPaging(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c", "d", "e"} {
		if err := store.Save(ctx, testJob(name)); err != nil {
			t.Fatal(err)
		}
	}

	page, err := store.List(ctx, ListFilter{Count: 2, Page: 2, OrderBy: "name", OrderDir: OrderAsc})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("page size = %d, want 2", len(page))
	}
	if page[0].Name != "c" || page[1].Name != "d" {
		t.Errorf("page = [%s %s], want [c d]", page[0].Name, page[1].Name)
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 5 {
		t.Errorf("Count() = %d, want 5", count)
	}
}

func TestMemoryStoreListDescendingAndTies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		job := testJob(name)
		// Same status for every job, so ordering by it is all ties.
		if err := store.Save(ctx, job); err != nil {
			t.Fatal(err)
		}
	}

	desc, err := store.List(ctx, ListFilter{OrderBy: "name", OrderDir: OrderDesc})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if desc[0].Name != "c" || desc[1].Name != "b" || desc[2].Name != "a" {
		t.Errorf("desc order = [%s %s %s], want [c b a]", desc[0].Name, desc[1].Name, desc[2].Name)
	}

	// Tied sort keys must produce the same order on every call.
	first, err := store.List(ctx, ListFilter{OrderBy: "status", OrderDir: OrderDesc})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := store.List(ctx, ListFilter{OrderBy: "status", OrderDir: OrderDesc})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		for j := range first {
			if again[j].ID != first[j].ID {
				t.Fatalf("tied order changed between calls at index %d", j)
			}
		}
	}
}

func TestMemoryStoreCopiesOnReturn(t *testing.T) {
	store := NewMemoryStore()
	job := testJob("shared")
	if err := store.Save(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.FindByID(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	loaded.Status = models.JobStatusFailed

	again, err := store.FindByID(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.Status != models.JobStatusPending {
		t.Error("mutating a returned job leaked into the store")
	}
}
