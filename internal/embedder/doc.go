// Package embedder turns passages and queries into unit-length vectors.
//
// Three providers implement the Embedder interface:
//
//   - openai: any OpenAI-compatible /embeddings endpoint through
//     github.com/sashabaranov/go-openai. Point BaseURL at Ollama
//     (http://localhost:11434/v1) to run without an API key.
//   - jina: the Jina AI embeddings API over plain HTTP.
//   - local: deterministic feature hashing, no network. Meant for tests and
//     offline development.
//
// Every vector leaving this package is L2-normalized, so the distance the
// vector index reports maps directly onto cosine similarity.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{Provider: "openai", APIKey: key})
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	result, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
//	    Text: "غیر قانونی حراست",
//	})
//
// # Provider Selection
//
// NewFromEnv reads:
//
//  1. HYBRIDRAG_EMBEDDING_PROVIDER when set
//  2. else JINA_API_KEY selects jina
//  3. else OPENAI_API_KEY or HYBRIDRAG_EMBEDDING_BASE_URL selects openai
//  4. else the local provider
//
// HYBRIDRAG_EMBEDDING_MODEL and HYBRIDRAG_EMBEDDING_DIMENSION override the
// provider defaults.
//
// # Errors
//
// Remote failures are retried with exponential backoff. Client errors other
// than 429 are not retried. Exhausted retries wrap ErrProviderFailed:
//
//	if errors.Is(err, embedder.ErrProviderFailed) {
//	    // provider down or misconfigured
//	}
package embedder
