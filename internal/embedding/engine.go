// Package embedding provides the fixed-dimension text-to-vector capability
// that the rest of calm depends on. Two roles are modeled: a fast 384-d
// code embedder and a quality 768-d semantic embedder. Both are lazily
// constructed once at startup and treated as read-only thereafter.
//
// Loading the underlying model is the one heavy-dependency step in the
// whole process: it must never happen before process-spawning is complete,
// so callers own the timing of NewRegistry relative to their own startup.
package embedding

import (
	"context"
	"fmt"
	"math"
	"time"

	"calm/internal/logging"
)

// =============================================================================
// EMBEDDING ENGINE INTERFACE
// =============================================================================

// Role identifies which of the two fixed embedding roles an engine fills.
type Role string

const (
	// RoleFast is the 384-d code embedder, used for search_code queries
	// and the code_units collection.
	RoleFast Role = "fast"

	// RoleQuality is the 768-d semantic embedder, used for every other
	// collection: memories, commits, values, and all ghap_* axes.
	RoleQuality Role = "quality"
)

// Dimensions required of an engine filling a given role. Enforced by
// NewRegistry so a misconfigured model cannot silently corrupt a
// fixed-dimension collection.
var roleDimensions = map[Role]int{
	RoleFast:    384,
	RoleQuality: 768,
}

// EmbeddingEngine generates vector embeddings for text.
type EmbeddingEngine interface {
	// Embed generates embeddings for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of embeddings
	Dimensions() int

	// Name returns the engine name
	Name() string
}

// HealthChecker is an optional interface for embedding engines that support
// health checks. If an engine implements this interface, the system can
// verify availability before attempting batch operations.
type HealthChecker interface {
	// HealthCheck verifies the embedding service is reachable.
	// Returns nil if healthy, error otherwise.
	HealthCheck(ctx context.Context) error
}

// =============================================================================
// EMBEDDING CONFIGURATION
// =============================================================================

// Config holds embedding engine configuration for both roles.
type Config struct {
	// FastProvider backs RoleFast (code). Currently only "ollama" is supported.
	FastProvider   string `json:"fast_provider"`
	OllamaEndpoint string `json:"ollama_endpoint"` // Default: "http://localhost:11434"
	OllamaModel    string `json:"ollama_model"`    // Default: "nomic-embed-code"

	// QualityProvider backs RoleQuality (semantic). Currently only "genai" is supported.
	QualityProvider string `json:"quality_provider"`
	GenAIAPIKey     string `json:"genai_api_key"`
	GenAIModel      string `json:"genai_model"` // Default: "gemini-embedding-001"
	TaskType        string `json:"task_type"`   // Default: "SEMANTIC_SIMILARITY"
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		FastProvider:    "ollama",
		OllamaEndpoint:  "http://localhost:11434",
		OllamaModel:     "nomic-embed-code",
		QualityProvider: "genai",
		GenAIModel:      "gemini-embedding-001",
		TaskType:        "SEMANTIC_SIMILARITY",
	}
}

// =============================================================================
// REGISTRY - the one tolerated write-once global besides configuration
// =============================================================================

// Registry holds the two role-bound engines, built once at startup.
type Registry struct {
	fast    EmbeddingEngine
	quality EmbeddingEngine
}

// NewRegistryFromEngines builds a Registry directly from already-constructed
// engines, bypassing provider configuration. Used by tests in other
// packages that need a Registry but not a real network-backed provider.
func NewRegistryFromEngines(fast, quality EmbeddingEngine) *Registry {
	return &Registry{fast: fast, quality: quality}
}

// Get returns the engine for the given role, or nil if that role was never built.
func (r *Registry) Get(role Role) EmbeddingEngine {
	switch role {
	case RoleFast:
		return r.fast
	case RoleQuality:
		return r.quality
	default:
		return nil
	}
}

// NewRegistry builds both role engines from configuration and validates
// that each produces vectors of the dimensionality its role requires.
//
// This is the heavy-dependency initialization point: callers must invoke
// it only after any process-spawning (forking subagents, daemonizing) is
// complete.
func NewRegistry(cfg Config) (*Registry, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "NewRegistry")
	defer timer.Stop()

	fast, err := newEngineForRole(RoleFast, cfg)
	if err != nil {
		return nil, fmt.Errorf("fast embedder: %w", err)
	}
	quality, err := newEngineForRole(RoleQuality, cfg)
	if err != nil {
		return nil, fmt.Errorf("quality embedder: %w", err)
	}

	logging.Embedding("Embedding registry ready: fast=%s (%dd), quality=%s (%dd)",
		fast.Name(), fast.Dimensions(), quality.Name(), quality.Dimensions())
	return &Registry{fast: fast, quality: quality}, nil
}

func newEngineForRole(role Role, cfg Config) (EmbeddingEngine, error) {
	var engine EmbeddingEngine
	var err error

	switch role {
	case RoleFast:
		switch cfg.FastProvider {
		case "ollama", "":
			logging.Embedding("Initializing fast (code) embedder: ollama endpoint=%s model=%s", cfg.OllamaEndpoint, cfg.OllamaModel)
			engine, err = NewOllamaEngine(cfg.OllamaEndpoint, cfg.OllamaModel)
		default:
			return nil, fmt.Errorf("unsupported fast embedding provider: %s", cfg.FastProvider)
		}
	case RoleQuality:
		switch cfg.QualityProvider {
		case "genai", "":
			logging.Embedding("Initializing quality (semantic) embedder: model=%s task_type=%s", cfg.GenAIModel, cfg.TaskType)
			engine, err = NewGenAIEngine(cfg.GenAIAPIKey, cfg.GenAIModel, cfg.TaskType)
		default:
			return nil, fmt.Errorf("unsupported quality embedding provider: %s", cfg.QualityProvider)
		}
	default:
		return nil, fmt.Errorf("unknown embedding role: %s", role)
	}

	if err != nil {
		logging.Get(logging.CategoryEmbedding).Error("Failed to create %s embedding engine: %v", role, err)
		return nil, err
	}

	want := roleDimensions[role]
	if got := engine.Dimensions(); got != want {
		return nil, fmt.Errorf("%s engine %s produces %d-d vectors, role requires %d-d", role, engine.Name(), got, want)
	}

	return engine, nil
}

// =============================================================================
// COSINE SIMILARITY UTILITY
// =============================================================================

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical, 0 means orthogonal.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		logging.Get(logging.CategoryEmbedding).Error("CosineSimilarity: vector dimension mismatch: %d != %d", len(a), len(b))
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}

	logging.EmbeddingDebug("Computing cosine similarity for vectors of dimension %d", len(a))

	var dotProduct, aMagnitude, bMagnitude float64
	for i := 0; i < len(a); i++ {
		dotProduct += float64(a[i] * b[i])
		aMagnitude += float64(a[i] * a[i])
		bMagnitude += float64(b[i] * b[i])
	}

	if aMagnitude == 0 || bMagnitude == 0 {
		logging.Get(logging.CategoryEmbedding).Warn("CosineSimilarity: zero magnitude vector detected")
		return 0, nil
	}

	result := dotProduct / (math.Sqrt(aMagnitude) * math.Sqrt(bMagnitude))
	logging.EmbeddingDebug("CosineSimilarity result: %.6f", result)
	return result, nil
}

// FindTopK returns the indices of the top K most similar vectors to the query.
// Uses cosine similarity.
func FindTopK(query []float32, corpus [][]float32, k int) ([]SimilarityResult, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "FindTopK")
	defer timer.Stop()

	if k <= 0 {
		k = 10
	}

	logging.EmbeddingDebug("FindTopK: searching for top %d results in corpus of %d vectors (query dim=%d)",
		k, len(corpus), len(query))

	results := make([]SimilarityResult, 0, len(corpus))
	skippedCount := 0

	for i, vec := range corpus {
		similarity, err := CosineSimilarity(query, vec)
		if err != nil {
			skippedCount++
			continue
		}

		results = append(results, SimilarityResult{
			Index:      i,
			Similarity: similarity,
		})
	}

	if skippedCount > 0 {
		logging.Get(logging.CategoryEmbedding).Warn("FindTopK: skipped %d vectors due to dimension mismatch", skippedCount)
	}

	// Sort by similarity descending
	// Use simple bubble sort for small K
	sortStart := time.Now()
	for i := 0; i < len(results) && i < k; i++ {
		for j := i + 1; j < len(results); j++ {
			if results[j].Similarity > results[i].Similarity {
				results[i], results[j] = results[j], results[i]
			}
		}
	}
	logging.EmbeddingDebug("FindTopK: sorting completed in %v", time.Since(sortStart))

	// Return top K
	if len(results) > k {
		results = results[:k]
	}

	logging.EmbeddingDebug("FindTopK: returning %d results (top similarity=%.4f, bottom similarity=%.4f)",
		len(results),
		func() float64 {
			if len(results) > 0 {
				return results[0].Similarity
			}
			return 0
		}(),
		func() float64 {
			if len(results) > 0 {
				return results[len(results)-1].Similarity
			}
			return 0
		}())

	return results, nil
}

// SimilarityResult represents a similarity search result.
type SimilarityResult struct {
	Index      int
	Similarity float64
}
