package blobstore

import (
	"strings"
	"sync"
	"testing"
)

func TestStore_PutGetRelease(t *testing.T) {
	s := New("")

	h := s.Put([]byte("png"), "image/png")
	if h.IsZero() {
		t.Fatal("Put returned zero handle")
	}
	if !strings.HasPrefix(h.URL, DefaultPrefix) || !strings.HasSuffix(h.URL, h.ID) {
		t.Errorf("URL = %q, want %s<id>", h.URL, DefaultPrefix)
	}

	b, ok := s.Get(h.ID)
	if !ok || string(b.Data) != "png" || b.ContentType != "image/png" {
		t.Fatalf("Get = (%+v, %v)", b, ok)
	}

	s.Release(h.ID)
	if _, ok := s.Get(h.ID); ok {
		t.Error("Get after Release still found blob")
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0", s.Len())
	}
}

func TestStore_HandlesAreExclusive(t *testing.T) {
	s := New("/x/")
	a := s.Put([]byte("same"), "image/png")
	b := s.Put([]byte("same"), "image/png")

	if a.ID == b.ID {
		t.Fatal("two Puts returned the same id")
	}
	s.Release(a.ID)
	if _, ok := s.Get(b.ID); !ok {
		t.Error("releasing one handle removed the other")
	}
	if s.Prefix() != "/x/" {
		t.Errorf("Prefix = %q", s.Prefix())
	}
}

func TestStore_ReleaseUnknownIsNoop(t *testing.T) {
	s := New("")
	s.Put([]byte("a"), "image/png")
	s.Release("")
	s.Release("does-not-exist")
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestStore_Concurrent(t *testing.T) {
	s := New("")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := s.Put([]byte("x"), "image/png")
			s.Get(h.ID)
			s.Release(h.ID)
		}()
	}
	wg.Wait()
	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0", s.Len())
	}
}
