// Package knowledge defines the retrieval-augmented query port the Tool
// Executor calls for the "query" tool kind. Call-time knowledge
// lookups are scoped to a single knowledge base and return a synthesized
// answer plus the source passages it was grounded on.
package knowledge

import "context"

// Passage is one retrieved chunk of source material, along with how
// closely it matched the query.
type Passage struct {
	ID      string
	Content string
	Score   float64
}

// Client is the port the session orchestrator and Tool Executor depend on.
// Implementations own embedding the query, running the similarity search,
// and synthesizing a short answer from the retrieved passages.
type Client interface {
	// Query answers a natural-language question against the named
	// knowledge base and returns a synthesized answer plus the IDs of the
	// passages it drew from.
	Query(ctx context.Context, knowledgeBaseID, query string) (answer string, sources []string, err error)

	// Search returns the topK passages most relevant to query, without
	// synthesizing an answer. Used by callers that want raw grounding
	// material rather than a generated response.
	Search(ctx context.Context, knowledgeBaseID, query string, topK int) ([]Passage, error)
}
