package retriever

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/smallnest/pdfqa/log"
	"github.com/smallnest/pdfqa/rag"
	"github.com/smallnest/pdfqa/rag/store"
)

// Defaults matching a plain as-retriever call on a vector index.
const (
	DefaultK          = 4
	DefaultFetchK     = 20
	DefaultLambdaMult = 0.5
)

// VectorRetriever implements document retrieval using vector similarity
type VectorRetriever struct {
	vectorStore rag.VectorStore
	embedder    rag.Embedder
	config      rag.RetrievalConfig
}

var _ rag.Retriever = (*VectorRetriever)(nil)

// NewVectorRetriever creates a new vector retriever. Zero config fields take
// the defaults: k 4, similarity search, fetch_k 20. A nil LambdaMult is 0.5.
func NewVectorRetriever(vectorStore rag.VectorStore, embedder rag.Embedder, config rag.RetrievalConfig) (*VectorRetriever, error) {
	config = withDefaults(config)
	if err := validate(config); err != nil {
		return nil, err
	}

	return &VectorRetriever{
		vectorStore: vectorStore,
		embedder:    embedder,
		config:      config,
	}, nil
}

func withDefaults(config rag.RetrievalConfig) rag.RetrievalConfig {
	if config.K <= 0 {
		config.K = DefaultK
	}
	if config.SearchType == "" {
		config.SearchType = rag.SearchTypeSimilarity
	}
	if config.FetchK <= 0 {
		config.FetchK = DefaultFetchK
	}
	if config.FetchK < config.K {
		config.FetchK = config.K
	}
	if config.LambdaMult == nil {
		config.LambdaMult = rag.Float64(DefaultLambdaMult)
	}
	return config
}

func validate(config rag.RetrievalConfig) error {
	switch config.SearchType {
	case rag.SearchTypeSimilarity, rag.SearchTypeMMR:
	case rag.SearchTypeScoreThreshold:
		if config.ScoreThreshold <= 0 {
			return fmt.Errorf("search type %s needs a positive score threshold", config.SearchType)
		}
	default:
		return fmt.Errorf("unknown search type %q", config.SearchType)
	}
	if l := *config.LambdaMult; l < 0 || l > 1 {
		return fmt.Errorf("lambda_mult must be within [0, 1], got %v", l)
	}
	return nil
}

// Config returns the retriever's default configuration.
func (r *VectorRetriever) Config() rag.RetrievalConfig {
	return r.config
}

// Retrieve retrieves documents based on a query
func (r *VectorRetriever) Retrieve(ctx context.Context, query string) ([]rag.Document, error) {
	return r.RetrieveWithK(ctx, query, r.config.K)
}

// RetrieveWithK retrieves up to k documents
func (r *VectorRetriever) RetrieveWithK(ctx context.Context, query string, k int) ([]rag.Document, error) {
	config := r.config
	config.K = k
	results, err := r.RetrieveWithConfig(ctx, query, &config)
	if err != nil {
		return nil, err
	}

	docs := make([]rag.Document, len(results))
	for i, result := range results {
		docs[i] = result.Document
	}

	return docs, nil
}

// SimilaritySearch returns the k chunks closest to query with their scores,
// ignoring the configured search type.
func (r *VectorRetriever) SimilaritySearch(ctx context.Context, query string, k int) ([]rag.DocumentSearchResult, error) {
	return r.RetrieveWithConfig(ctx, query, &rag.RetrievalConfig{K: k, SearchType: rag.SearchTypeSimilarity})
}

// RetrieveWithConfig retrieves documents with custom configuration
func (r *VectorRetriever) RetrieveWithConfig(ctx context.Context, query string, config *rag.RetrievalConfig) ([]rag.DocumentSearchResult, error) {
	cfg := r.config
	if config != nil {
		cfg = withDefaults(*config)
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	queryEmbedding, err := r.embedder.EmbedDocument(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	fetch := cfg.K
	if cfg.SearchType == rag.SearchTypeMMR {
		fetch = cfg.FetchK
	}

	var results []rag.DocumentSearchResult
	if len(cfg.Filter) > 0 {
		results, err = r.vectorStore.SearchWithFilter(ctx, queryEmbedding, fetch, cfg.Filter)
	} else {
		results, err = r.vectorStore.Search(ctx, queryEmbedding, fetch)
	}
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	if cfg.ScoreThreshold > 0 {
		filtered := make([]rag.DocumentSearchResult, 0, len(results))
		for _, result := range results {
			if result.Score >= cfg.ScoreThreshold {
				filtered = append(filtered, result)
			}
		}
		if len(filtered) == 0 {
			log.Warn("no documents scored above %.2f for query %q", cfg.ScoreThreshold, query)
		}
		results = filtered
	}

	if cfg.SearchType == rag.SearchTypeMMR {
		results = maximalMarginalRelevance(queryEmbedding, results, cfg.K, *cfg.LambdaMult)
	}

	log.Debug("retrieved %d documents for %q", len(results), query)
	return results, nil
}

// maximalMarginalRelevance picks k results, each time taking the candidate
// maximising lambda*sim(query, doc) - (1-lambda)*max sim(doc, selected).
// The first pick is always the most relevant candidate.
func maximalMarginalRelevance(query []float32, candidates []rag.DocumentSearchResult, k int, lambda float64) []rag.DocumentSearchResult {
	if len(candidates) == 0 || k <= 0 {
		return []rag.DocumentSearchResult{}
	}
	if k > len(candidates) {
		k = len(candidates)
	}

	relevance := make([]float64, len(candidates))
	for i, c := range candidates {
		if len(c.Document.Embedding) > 0 {
			relevance[i] = store.CosineSimilarity(query, c.Document.Embedding)
		} else {
			relevance[i] = c.Score
		}
	}

	used := make([]bool, len(candidates))
	selected := make([]int, 0, k)

	best := 0
	for i := range relevance {
		if relevance[i] > relevance[best] {
			best = i
		}
	}
	selected = append(selected, best)
	used[best] = true

	for len(selected) < k {
		bestIdx, bestScore := -1, 0.0
		for i := range candidates {
			if used[i] {
				continue
			}
			maxSim := 0.0
			for _, j := range selected {
				if sim := similarity(candidates[i].Document, candidates[j].Document); sim > maxSim {
					maxSim = sim
				}
			}
			score := lambda*relevance[i] - (1-lambda)*maxSim
			if bestIdx < 0 || score > bestScore {
				bestIdx, bestScore = i, score
			}
		}
		selected = append(selected, bestIdx)
		used[bestIdx] = true
	}

	out := make([]rag.DocumentSearchResult, len(selected))
	for i, idx := range selected {
		out[i] = candidates[idx]
	}
	return out
}

// similarity compares two documents by embedding, falling back to word
// overlap when either has none.
func similarity(a, b rag.Document) float64 {
	if len(a.Embedding) > 0 && len(b.Embedding) > 0 {
		return store.CosineSimilarity(a.Embedding, b.Embedding)
	}
	return contentSimilarity(a.Content, b.Content)
}

// contentSimilarity is the Jaccard index of the two texts' word sets.
func contentSimilarity(a, b string) float64 {
	wordsA := wordSet(a)
	wordsB := wordSet(b)

	intersection := 0
	for word := range wordsA {
		if wordsB[word] {
			intersection++
		}
	}

	union := len(wordsA) + len(wordsB) - intersection
	if union == 0 {
		return 1.0
	}

	return float64(intersection) / float64(union)
}

func wordSet(text string) map[string]bool {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
