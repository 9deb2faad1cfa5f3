package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/hybridrag/internal/embedder"
	"github.com/dshills/hybridrag/internal/expander"
	"github.com/dshills/hybridrag/internal/fusion"
	"github.com/dshills/hybridrag/internal/storage"
	"github.com/dshills/hybridrag/pkg/types"
)

const (
	// DefaultK is the number of passages returned when the caller does not say
	DefaultK = 4
	// DefaultLexicalLimit bounds the FTS prefilter when the caller does not say
	DefaultLexicalLimit = 120
	// MaxK caps the number of passages per search
	MaxK = 100
	// Oversample is how many vector neighbours are requested per wanted result
	Oversample = 5

	defaultCacheSize = 1000
	defaultCacheTTL  = time.Hour
)

// Index is the read side of the corpus a Searcher needs
type Index interface {
	storage.TermIndex
	storage.VectorIndex
	storage.ChunkStore
}

// ChangeTracker is implemented by indexes that can report commits made
// through other connections, such as an ingest running in another process.
// The version changes whenever such a commit lands.
type ChangeTracker interface {
	DataVersion(ctx context.Context) (int64, error)
}

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Query        string
	K            int  // 0 selects DefaultK
	LexicalLimit int  // 0 selects DefaultLexicalLimit
	UseCache     bool // Consult and fill the result cache when one is configured
}

// SearchResponse contains ranked passages and diagnostics
type SearchResponse struct {
	Results      []types.ScoredResult
	TotalResults int
	Duration     time.Duration
	CacheHit     bool

	ExpandedTerms     int
	LexicalStatus     storage.LexicalStatus
	LexicalCandidates int
	VectorCandidates  int
	MissingChunks     int
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// Searcher runs hybrid retrieval: FTS prefilter, vector ranking within the
// prefilter, then keyword-bonus fusion
type Searcher struct {
	index    Index
	embedder embedder.Embedder
	expander *expander.Expander
	ranker   *fusion.Ranker
	logger   *slog.Logger

	defaultK            int
	defaultLexicalLimit int

	cache    *lru.Cache[[32]byte, *cacheEntry]
	cacheTTL time.Duration
	cacheMu  sync.RWMutex

	// Index data version the cached responses were computed against
	dataVersion      int64
	dataVersionKnown bool
}

// Option configures a Searcher
type Option func(*Searcher)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithExpander replaces the default synonym expander
func WithExpander(e *expander.Expander) Option {
	return func(s *Searcher) {
		if e != nil {
			s.expander = e
		}
	}
}

// WithRanker replaces the default fusion ranker
func WithRanker(r *fusion.Ranker) Option {
	return func(s *Searcher) {
		if r != nil {
			s.ranker = r
		}
	}
}

// WithDefaults overrides DefaultK and DefaultLexicalLimit for requests that leave them at zero
func WithDefaults(k, lexicalLimit int) Option {
	return func(s *Searcher) {
		if k > 0 {
			s.defaultK = k
		}
		if lexicalLimit > 0 {
			s.defaultLexicalLimit = lexicalLimit
		}
	}
}

// WithCache sizes the result cache. A non-positive size disables caching.
func WithCache(size int, ttl time.Duration) Option {
	return func(s *Searcher) {
		if size <= 0 {
			s.cache = nil
			return
		}
		cache, err := lru.New[[32]byte, *cacheEntry](size)
		if err != nil {
			return
		}
		s.cache = cache
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// NewSearcher creates a Searcher over the given index and query embedder
func NewSearcher(index Index, emb embedder.Embedder, opts ...Option) *Searcher {
	// Cache will automatically evict least recently used entries
	cache, err := lru.New[[32]byte, *cacheEntry](defaultCacheSize)
	if err != nil {
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}

	s := &Searcher{
		index:               index,
		embedder:            emb,
		expander:            expander.New(nil),
		ranker:              fusion.NewRanker(nil),
		logger:              slog.Default().With("component", "searcher"),
		defaultK:            DefaultK,
		defaultLexicalLimit: DefaultLexicalLimit,
		cache:               cache,
		cacheTTL:            defaultCacheTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search returns the text of up to k passages best matching query, best
// first. No relevant passage yields an empty slice and a nil error.
// Retrieval failures wrap types.ErrVectorUnavailable or
// types.ErrEmbeddingFailed; cancellation returns the context error.
func (s *Searcher) Search(ctx context.Context, query string, k, lexicalLimit int) ([]string, error) {
	resp, err := s.SearchScored(ctx, SearchRequest{
		Query:        query,
		K:            k,
		LexicalLimit: lexicalLimit,
		UseCache:     true,
	})
	if err != nil {
		return nil, err
	}
	return types.Texts(resp.Results), nil
}

// SearchScored runs a search and returns scored results with diagnostics
func (s *Searcher) SearchScored(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	if s.embedder == nil || s.index == nil {
		return nil, fmt.Errorf("searcher not initialized")
	}

	if err := s.validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	if req.UseCache && s.cache != nil {
		s.syncDataVersion(ctx)
		if cached, ok := s.checkCache(ctx, req); ok {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	response, err := s.hybridSearch(ctx, req)
	if err != nil {
		return nil, err
	}
	response.Duration = time.Since(startTime)

	if req.UseCache && s.cache != nil && len(response.Results) > 0 {
		s.storeInCache(req, response)
	}

	s.logger.Debug("search completed",
		"results", response.TotalResults,
		"lexical_status", response.LexicalStatus.String(),
		"lexical_candidates", response.LexicalCandidates,
		"vector_candidates", response.VectorCandidates,
		"missing_chunks", response.MissingChunks,
		"duration", response.Duration)

	return response, nil
}

// hybridSearch expands the query, runs the lexical prefilter and the query
// embedding concurrently, ranks by vector distance within the prefilter and
// fuses the result
func (s *Searcher) hybridSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	terms := s.expander.Expand(req.Query)
	s.logger.Debug("query expanded", "terms", len(terms))

	var lexical storage.LexicalResult
	var queryVector []float32

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lexical = s.index.LexicalCandidates(gctx, terms, req.LexicalLimit)
		return nil
	})
	g.Go(func() error {
		// The embedding always sees the original query, never the expansion
		emb, err := s.embedder.GenerateEmbedding(gctx, embedder.EmbeddingRequest{Text: req.Query})
		if err != nil {
			return err
		}
		queryVector = emb.Vector
		return nil
	})

	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", types.ErrEmbeddingFailed, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	response := &SearchResponse{
		ExpandedTerms: len(terms),
		LexicalStatus: lexical.Status,
	}

	var restrictTo []int64
	switch lexical.Status {
	case storage.LexicalOK:
		restrictTo = lexical.IDs
	case storage.LexicalUnavailable:
		s.logger.Warn("lexical prefilter unavailable, searching full corpus", "error", lexical.Err)
	default:
		s.logger.Debug("lexical prefilter empty by policy")
	}
	response.LexicalCandidates = len(restrictTo)

	limit := Oversample * req.K
	if len(restrictTo) > 0 && req.LexicalLimit < limit {
		limit = req.LexicalLimit
	}

	candidates, err := s.index.Nearest(ctx, queryVector, restrictTo, limit)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, types.ErrVectorUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", types.ErrVectorUnavailable, err)
	}
	response.VectorCandidates = len(candidates)

	candidates, missing, err := s.attachText(ctx, candidates, lexical.IDs)
	if err != nil {
		return nil, err
	}
	response.MissingChunks = missing

	response.Results = s.ranker.Fuse(candidates, req.K)
	response.TotalResults = len(response.Results)
	return response, nil
}

// attachText fills in passage text and lexical rank. Candidates whose text
// cannot be loaded are dropped.
func (s *Searcher) attachText(ctx context.Context, candidates []types.Candidate, lexicalIDs []int64) ([]types.Candidate, int, error) {
	ranks := make(map[int64]int, len(lexicalIDs))
	for i, id := range lexicalIDs {
		ranks[id] = i + 1
	}

	kept := make([]types.Candidate, 0, len(candidates))
	missing := 0
	for _, c := range candidates {
		text, err := s.index.GetChunkText(ctx, c.ChunkID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, 0, ctxErr
			}
			missing++
			if errors.Is(err, storage.ErrNotFound) {
				s.logger.Warn("dropping candidate", "chunk_id", c.ChunkID, "error", types.ErrMissingChunkText)
			} else {
				s.logger.Warn("dropping candidate", "chunk_id", c.ChunkID, "error", err)
			}
			continue
		}
		c.Text = text
		c.LexicalRank = ranks[c.ChunkID]
		kept = append(kept, c)
	}
	return kept, missing, nil
}

// validateRequest applies defaults and rejects unusable requests
func (s *Searcher) validateRequest(req *SearchRequest) error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return types.ErrEmptyQuery
	}

	if req.K < 0 || req.LexicalLimit < 0 {
		return types.ErrInvalidLimit
	}

	if req.K == 0 {
		req.K = s.defaultK
	}
	if req.K > MaxK {
		req.K = MaxK
	}

	if req.LexicalLimit == 0 {
		req.LexicalLimit = s.defaultLexicalLimit
	}

	return nil
}

// syncDataVersion purges the cache when the index was changed through
// another connection since the cached responses were computed
func (s *Searcher) syncDataVersion(ctx context.Context) {
	tracker, ok := s.index.(ChangeTracker)
	if !ok {
		return
	}

	version, err := tracker.DataVersion(ctx)
	if err != nil {
		s.logger.Debug("data version unavailable, dropping cache", "error", err)
		s.InvalidateCache()
		return
	}

	s.cacheMu.Lock()
	if s.dataVersionKnown && version != s.dataVersion {
		s.logger.Debug("corpus changed elsewhere, dropping cache", "entries", s.cache.Len())
		s.cache.Purge()
	}
	s.dataVersion = version
	s.dataVersionKnown = true
	s.cacheMu.Unlock()
}

// checkCache looks up a live cached response. A hit is only served while
// every cached passage is still stored with the same text.
func (s *Searcher) checkCache(ctx context.Context, req SearchRequest) (*SearchResponse, bool) {
	hash := computeQueryHash(req)
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)
	if !found {
		s.cacheMu.RUnlock()
		return nil, false
	}

	if now.After(entry.expiresAt) {
		s.cacheMu.RUnlock()

		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil, false
	}

	response := copySearchResponse(entry.response)
	s.cacheMu.RUnlock()

	for _, r := range response.Results {
		text, err := s.index.GetChunkText(ctx, r.ChunkID)
		if err != nil || text != r.Text {
			s.cacheMu.Lock()
			s.cache.Remove(hash)
			s.cacheMu.Unlock()
			return nil, false
		}
	}

	return response, true
}

// storeInCache saves a copy of the response
func (s *Searcher) storeInCache(req SearchRequest, response *SearchResponse) {
	entry := &cacheEntry{
		response:  copySearchResponse(response),
		expiresAt: time.Now().Add(s.cacheTTL),
	}

	s.cacheMu.Lock()
	s.cache.Add(computeQueryHash(req), entry)
	s.cacheMu.Unlock()
}

// copySearchResponse creates a deep copy of a SearchResponse
func copySearchResponse(src *SearchResponse) *SearchResponse {
	if src == nil {
		return nil
	}

	dst := *src
	dst.Results = make([]types.ScoredResult, len(src.Results))
	copy(dst.Results, src.Results)
	return &dst
}

// computeQueryHash keys the cache on everything that changes the result
func computeQueryHash(req SearchRequest) [32]byte {
	var data strings.Builder
	data.WriteString(req.Query)
	data.WriteString("|")
	data.WriteString(fmt.Sprintf("%d|%d", req.K, req.LexicalLimit))
	return sha256.Sum256([]byte(data.String()))
}

// InvalidateCache drops every cached response. Call it after the corpus changes.
func (s *Searcher) InvalidateCache() {
	if s.cache == nil {
		return
	}
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// ResizeCache changes the cache capacity and returns how many entries were evicted
func (s *Searcher) ResizeCache(maxEntries int) (int, error) {
	if maxEntries <= 0 {
		return 0, types.ErrInvalidLimit
	}
	if s.cache == nil {
		return 0, nil
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.cache.Resize(maxEntries), nil
}

// CacheLen reports the number of cached responses
func (s *Searcher) CacheLen() int {
	if s.cache == nil {
		return 0
	}
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cache.Len()
}
