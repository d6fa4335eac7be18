package db

import (
	"context"
	"testing"
	"time"
)

func TestHistoryRepository_InsertAndRecent(t *testing.T) {
	database := openTestDB(t)
	repo := NewHistoryRepository(database, nil)
	ctx := context.Background()

	records := []JobRecord{
		{JobID: "a", Origin: "local", SourceName: "car.png", Status: "succeeded", InputBytes: 10, OutputBytes: 20, DurationMS: 1500},
		{JobID: "b", Origin: "remote-sample", SampleID: 2, Status: "failed", ErrorKind: "acquisition", ErrorMessage: "Failed to fetch sample image: server responded 404 Not Found"},
		{JobID: "c", Origin: "local", SourceName: "x.png", Status: "superseded"},
	}
	for _, rec := range records {
		id, err := repo.Insert(ctx, rec)
		if err != nil {
			t.Fatalf("Insert(%s): %v", rec.JobID, err)
		}
		if id == 0 {
			t.Errorf("Insert(%s) returned id 0 for synchronous write", rec.JobID)
		}
	}

	got, err := repo.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Recent returned %d rows, want 3", len(got))
	}
	if got[0].JobID != "c" {
		t.Errorf("newest first: got %q, want c", got[0].JobID)
	}

	b := got[1]
	if b.SampleID != 2 || b.ErrorKind != "acquisition" || b.SourceName != "" {
		t.Errorf("record b = %+v", b)
	}
	if b.CreatedAt.IsZero() || time.Since(b.CreatedAt) > time.Hour {
		t.Errorf("CreatedAt = %v, want recent", b.CreatedAt)
	}

	if n, _ := repo.Count(ctx, ""); n != 3 {
		t.Errorf("Count() = %d, want 3", n)
	}
	if n, _ := repo.Count(ctx, "superseded"); n != 1 {
		t.Errorf("Count(superseded) = %d, want 1", n)
	}

	limited, _ := repo.Recent(ctx, 1)
	if len(limited) != 1 {
		t.Errorf("Recent(1) returned %d rows", len(limited))
	}
}

func TestHistoryRepository_RejectsIncomplete(t *testing.T) {
	repo := NewHistoryRepository(openTestDB(t), nil)
	if _, err := repo.Insert(context.Background(), JobRecord{Origin: "local"}); err == nil {
		t.Error("expected error for record without job id")
	}
}

func TestHistoryRepository_AsyncWrites(t *testing.T) {
	database := openTestDB(t)
	repo := NewHistoryRepository(database, nil)
	writer := NewAsyncWriter(repo.AsyncWriteHandler())
	repo = NewHistoryRepository(database, writer)
	writer.Start()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		id, err := repo.Insert(ctx, JobRecord{JobID: "job", Origin: "local", Status: "succeeded"})
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if id != 0 {
			t.Errorf("queued insert returned id %d, want 0", id)
		}
	}
	writer.Stop()

	if n, err := repo.Count(ctx, "succeeded"); err != nil || n != 5 {
		t.Errorf("Count = (%d, %v), want 5", n, err)
	}
}

func TestHistoryRepository_FullQueueWritesSynchronously(t *testing.T) {
	database := openTestDB(t)
	direct := NewHistoryRepository(database, nil)

	release := make(chan struct{})
	picked := make(chan struct{}, 1)
	handle := direct.AsyncWriteHandler()
	writer := NewAsyncWriterWithConfig(func(op QueuedWrite[JobRecord]) error {
		select {
		case picked <- struct{}{}:
		default:
		}
		<-release
		return handle(op)
	}, AsyncWriterConfig[JobRecord]{ChannelCapacity: 1})
	repo := NewHistoryRepository(database, writer)
	writer.Start()

	ctx := context.Background()
	rec := JobRecord{JobID: "j", Origin: "local", Status: "succeeded"}

	// First insert is taken by the blocked handler, the second fills the queue.
	if id, err := repo.Insert(ctx, rec); err != nil || id != 0 {
		t.Fatalf("first Insert = (%d, %v), want queued", id, err)
	}
	<-picked
	if id, err := repo.Insert(ctx, rec); err != nil || id != 0 {
		t.Fatalf("second Insert = (%d, %v), want queued", id, err)
	}

	id, err := repo.Insert(ctx, rec)
	if err != nil {
		t.Fatalf("third Insert: %v", err)
	}
	if id == 0 {
		t.Error("insert on a full queue should be written synchronously and return its row id")
	}

	close(release)
	writer.Stop()
	if n, err := repo.Count(ctx, "succeeded"); err != nil || n != 3 {
		t.Errorf("Count = (%d, %v), want 3", n, err)
	}
}

func TestParseSQLiteTime(t *testing.T) {
	want := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	for _, in := range []string{"2024-05-06 07:08:09", "2024-05-06T07:08:09Z"} {
		if got := parseSQLiteTime(in); !got.Equal(want) {
			t.Errorf("parseSQLiteTime(%q) = %v, want %v", in, got, want)
		}
	}
	if !parseSQLiteTime("garbage").IsZero() {
		t.Error("garbage should parse to zero time")
	}
}
