package ingest_test

import (
	"context"
	"os"
	"sync"
	"testing"

	"gorm.io/gorm"

	"satchel/internal/db"
	"satchel/internal/ingest"
)

// These tests run the production claim/sweep SQL, whose row-lock and
// SKIP LOCKED behavior the in-memory fake can only approximate. They skip
// unless TEST_DATABASE_URL points at a disposable database.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	gdb, err := db.Connect(dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := db.AutoMigrateAndIndexes(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// claims are table-global, so eligible leftovers from other runs would
	// skew the winner counts
	if err := gdb.Exec(`truncate processing_jobs`).Error; err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return gdb
}

func testStore(gdb *gorm.DB) *ingest.GormStore {
	return &ingest.GormStore{DB: gdb, LeaseSeconds: 60, MaxAttempts: 3}
}

func enqueueOne(t *testing.T, gdb *gorm.DB, store *ingest.GormStore) uint64 {
	t.Helper()
	job := &ingest.Job{UserID: 1, FileID: "11111111-1111-1111-1111-111111111111", FileName: "a.txt", ObjectKey: "raw/a"}
	if err := store.Enqueue(gdb, job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return job.ID
}

// expireLease backdates the lease so the row is reclaimable and sweepable
// without waiting out LeaseSeconds.
func expireLease(t *testing.T, gdb *gorm.DB, id uint64) {
	t.Helper()
	if err := gdb.Exec(`update processing_jobs set lease_expires_at = now() - interval '1 minute' where id = ?`, id).Error; err != nil {
		t.Fatalf("expire lease: %v", err)
	}
}

func TestGormStoreClaim_singleWinnerUnderConcurrency(t *testing.T) {
	gdb := testDB(t)
	store := testStore(gdb)
	enqueueOne(t, gdb, store)

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	var winners []string

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			job, err := store.Claim(context.Background(), string(rune('a'+i)))
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			if job != nil {
				mu.Lock()
				winners = append(winners, *job.WorkerID)
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if len(winners) != 1 {
		t.Fatalf("winners = %v, want exactly one", winners)
	}
}

func TestGormStoreClaim_reclaimsExpiredLease(t *testing.T) {
	gdb := testDB(t)
	store := testStore(gdb)
	id := enqueueOne(t, gdb, store)

	first, err := store.Claim(context.Background(), "w1")
	if err != nil || first == nil {
		t.Fatalf("first claim: job=%v err=%v", first, err)
	}
	if job, _ := store.Claim(context.Background(), "w2"); job != nil {
		t.Fatal("claimed a job under a live lease")
	}

	expireLease(t, gdb, id)
	second, err := store.Claim(context.Background(), "w2")
	if err != nil || second == nil {
		t.Fatalf("reclaim: job=%v err=%v", second, err)
	}
	if second.WorkerID == nil || *second.WorkerID != "w2" {
		t.Errorf("worker = %v, want w2", second.WorkerID)
	}
	if second.StartedAt == nil {
		t.Error("started_at lost on reclaim")
	}
}

func TestGormStoreRequeueStalled_sweepIsIdempotent(t *testing.T) {
	gdb := testDB(t)
	store := testStore(gdb)
	id := enqueueOne(t, gdb, store)

	if job, _ := store.Claim(context.Background(), "w1"); job == nil {
		t.Fatal("claim came up empty")
	}
	expireLease(t, gdb, id)

	n, err := store.RequeueStalled(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("first sweep requeued %d, want 1", n)
	}

	// no time has passed; the same sweep again must find nothing
	n, err = store.RequeueStalled(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("second sweep requeued %d, want 0", n)
	}

	var job ingest.Job
	if err := gdb.Where("id=?", id).First(&job).Error; err != nil {
		t.Fatal(err)
	}
	if job.Status != ingest.StatusQueued || job.Attempts != 1 {
		t.Errorf("status=%s attempts=%d, want queued/1", job.Status, job.Attempts)
	}
	if job.ErrorCode == nil || *job.ErrorCode != ingest.CodeWorkerStalled {
		t.Errorf("error_code = %v, want %s", job.ErrorCode, ingest.CodeWorkerStalled)
	}
}

func TestGormStoreMarkReady_requiresLeaseOwnership(t *testing.T) {
	gdb := testDB(t)
	store := testStore(gdb)
	id := enqueueOne(t, gdb, store)

	old, err := store.Claim(context.Background(), "w1")
	if err != nil || old == nil {
		t.Fatalf("first claim: job=%v err=%v", old, err)
	}
	expireLease(t, gdb, id)
	if job, _ := store.Claim(context.Background(), "w2"); job == nil {
		t.Fatal("reclaim came up empty")
	}

	// the superseded worker finishes late; nothing must change
	if err := store.MarkReady(context.Background(), old); err != nil {
		t.Fatal(err)
	}
	status, err := store.Status(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if status != ingest.StatusProcessing {
		t.Errorf("status = %s, want processing under w2's lease", status)
	}
}
