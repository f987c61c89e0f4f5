// Package corpus loads the content-addressed reference corpus: the acts,
// their canonical texts, and their receiving addresses.
//
// The document is fetched once from a gateway, integrity-checked, and
// held in memory for the process lifetime. A layered cache keeps the raw
// document so a restart survives a gateway outage.
package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ppiankov/sanctum/internal/cache"
	"github.com/ppiankov/sanctum/internal/model"
)

const maxDocumentBytes = 4 << 20

// Store fetches and serves the corpus. Entries are read-only after load.
type Store struct {
	gateway    string
	cid        string
	httpClient *http.Client
	cache      cache.Cache
	cacheTTL   time.Duration

	mu     sync.RWMutex
	corpus *model.Corpus
	byID   map[int]model.Act
}

// NewStore creates a corpus store. docCache may be nil to always hit the
// gateway.
func NewStore(gateway, cid string, timeout time.Duration, docCache cache.Cache) *Store {
	return &Store{
		gateway:    trimTrailingSlash(gateway),
		cid:        cid,
		httpClient: &http.Client{Timeout: timeout},
		cache:      docCache,
		cacheTTL:   time.Hour,
	}
}

// Load fetches and validates the corpus. Idempotent; later calls return
// nil once a corpus is held.
func (s *Store) Load(ctx context.Context) error {
	s.mu.RLock()
	loaded := s.corpus != nil
	s.mu.RUnlock()
	if loaded {
		return nil
	}

	raw, err := s.fetch(ctx)
	if err != nil {
		return err
	}

	var corpus model.Corpus
	if err := json.Unmarshal(raw, &corpus); err != nil {
		return fmt.Errorf("parse corpus document: %w", err)
	}
	if err := checkIntegrity(&corpus); err != nil {
		return fmt.Errorf("corpus integrity: %w", err)
	}

	byID := make(map[int]model.Act, len(corpus.Acts))
	for _, act := range corpus.Acts {
		byID[act.ID] = act
	}

	s.mu.Lock()
	s.corpus = &corpus
	s.byID = byID
	s.mu.Unlock()
	return nil
}

// Act returns the entry for an act id.
func (s *Store) Act(id int) (model.Act, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	act, ok := s.byID[id]
	return act, ok
}

// Acts returns all entries in document order.
func (s *Store) Acts() []model.Act {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.corpus == nil {
		return nil
	}
	out := make([]model.Act, len(s.corpus.Acts))
	copy(out, s.corpus.Acts)
	return out
}

// Version returns the loaded document version.
func (s *Store) Version() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.corpus == nil {
		return ""
	}
	return s.corpus.Version
}

func (s *Store) fetch(ctx context.Context) ([]byte, error) {
	key := cache.Key("corpus:" + s.cid)
	if s.cache != nil {
		if raw, found := s.cache.Get(key); found {
			return raw, nil
		}
	}

	url := fmt.Sprintf("%s/ipfs/%s", s.gateway, s.cid)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, model.Transient(fmt.Errorf("fetch corpus: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, model.Transient(fmt.Errorf("fetch corpus: unexpected status %d", resp.StatusCode))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, model.Transient(fmt.Errorf("read corpus: %w", err))
	}

	if s.cache != nil {
		_ = s.cache.Set(key, raw, s.cacheTTL)
	}
	return raw, nil
}

// checkIntegrity enforces the load-time contract: at least one act,
// unique ids, non-empty canonical texts.
func checkIntegrity(c *model.Corpus) error {
	if len(c.Acts) == 0 {
		return fmt.Errorf("document has no acts")
	}

	seen := make(map[int]struct{}, len(c.Acts))
	for _, act := range c.Acts {
		if act.ID <= 0 {
			return fmt.Errorf("act id %d is not positive", act.ID)
		}
		if _, dup := seen[act.ID]; dup {
			return fmt.Errorf("duplicate act id %d", act.ID)
		}
		seen[act.ID] = struct{}{}
		if act.CanonicalText == "" {
			return fmt.Errorf("act %d has empty canonical text", act.ID)
		}
	}
	return nil
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
