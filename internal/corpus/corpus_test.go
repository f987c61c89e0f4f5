package corpus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ppiankov/sanctum/internal/cache"
	"github.com/ppiankov/sanctum/internal/model"
)

const testDocument = `{
	"version": "1.2",
	"acts": [
		{"id": 1, "title": "The Shield", "canonical_text": "the key you hold is the self you own", "address": "zs1act1"},
		{"id": 2, "title": "The Mirror", "canonical_text": "trust grows where secrets are kept safe", "address": "zs1act2"}
	]
}`

func newTestServer(t *testing.T, doc string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ipfs/testcid" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(doc))
	}))
}

func TestStore_Load(t *testing.T) {
	srv := newTestServer(t, testDocument)
	defer srv.Close()

	store := NewStore(srv.URL, "testcid", 5*time.Second, nil)
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if store.Version() != "1.2" {
		t.Errorf("version = %q, want 1.2", store.Version())
	}
	if len(store.Acts()) != 2 {
		t.Fatalf("acts = %d, want 2", len(store.Acts()))
	}

	act, ok := store.Act(2)
	if !ok {
		t.Fatal("act 2 not found")
	}
	if act.CanonicalText != "trust grows where secrets are kept safe" {
		t.Errorf("canonical text = %q", act.CanonicalText)
	}
	if _, ok := store.Act(99); ok {
		t.Error("unknown act id resolved")
	}
}

func TestStore_Load_Idempotent(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(testDocument))
	}))
	defer srv.Close()

	store := NewStore(srv.URL, "testcid", 5*time.Second, nil)
	for i := 0; i < 3; i++ {
		if err := store.Load(context.Background()); err != nil {
			t.Fatalf("Load %d failed: %v", i, err)
		}
	}
	if calls != 1 {
		t.Errorf("gateway hit %d times, want 1", calls)
	}
}

func TestStore_Load_UsesCache(t *testing.T) {
	srv := newTestServer(t, testDocument)
	docCache := cache.NewMemoryCache(time.Minute, time.Minute)

	first := NewStore(srv.URL, "testcid", 5*time.Second, docCache)
	if err := first.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Gateway down; a fresh store must still load from the cache.
	srv.Close()
	second := NewStore(srv.URL, "testcid", 5*time.Second, docCache)
	if err := second.Load(context.Background()); err != nil {
		t.Fatalf("Load from cache failed: %v", err)
	}
	if len(second.Acts()) != 2 {
		t.Errorf("cached load returned %d acts, want 2", len(second.Acts()))
	}
}

func TestStore_Load_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusBadGateway)
	}))
	defer srv.Close()

	store := NewStore(srv.URL, "testcid", 5*time.Second, nil)
	err := store.Load(context.Background())
	if err == nil {
		t.Fatal("Load succeeded against a failing gateway")
	}
	if !model.IsTransient(err) {
		t.Errorf("gateway failure not marked transient: %v", err)
	}
}

func TestCheckIntegrity(t *testing.T) {
	cases := []struct {
		name   string
		corpus model.Corpus
		ok     bool
	}{
		{"valid", model.Corpus{Acts: []model.Act{{ID: 1, CanonicalText: "a"}}}, true},
		{"empty", model.Corpus{}, false},
		{"duplicate id", model.Corpus{Acts: []model.Act{{ID: 1, CanonicalText: "a"}, {ID: 1, CanonicalText: "b"}}}, false},
		{"empty text", model.Corpus{Acts: []model.Act{{ID: 1}}}, false},
		{"non-positive id", model.Corpus{Acts: []model.Act{{ID: 0, CanonicalText: "a"}}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := checkIntegrity(&tc.corpus)
			if (err == nil) != tc.ok {
				t.Errorf("checkIntegrity = %v, want ok=%v", err, tc.ok)
			}
		})
	}
}
