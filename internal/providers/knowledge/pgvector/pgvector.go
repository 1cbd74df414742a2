// Package pgvector implements knowledge.Client on top of PostgreSQL with
// the pgvector extension: embed the query, run a cosine-distance nearest
// neighbour search over a passages table, and synthesize an answer from
// the retrieved passages with the configured LLM client.
package pgvector

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"

	"github.com/agentplexus/voiceengine/internal/providers/embeddings"
	"github.com/agentplexus/voiceengine/knowledge"
	"github.com/agentplexus/voiceengine/llm"
)

var _ knowledge.Client = (*Client)(nil)

// Client answers knowledge-base queries against a PostgreSQL passages
// table with a pgvector ivfflat or hnsw index.
type Client struct {
	pool     *pgxpool.Pool
	embedder embeddings.Provider
	llm      *llm.Client
}

// New connects to dsn and returns a Client. embedder produces query
// vectors; llmClient synthesizes the final answer from retrieved passages.
func New(ctx context.Context, dsn string, embedder embeddings.Provider, llmClient *llm.Client) (*Client, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgvector: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector: ping: %w", err)
	}
	return &Client{pool: pool, embedder: embedder, llm: llmClient}, nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() {
	c.pool.Close()
}

// Search implements knowledge.Client.
func (c *Client) Search(ctx context.Context, knowledgeBaseID, query string, topK int) ([]knowledge.Passage, error) {
	if topK <= 0 {
		topK = 5
	}
	vec, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("pgvector: embed query: %w", err)
	}
	queryVec := pgv.NewVector(vec)

	const q = `
		SELECT id, content, embedding <=> $1 AS distance
		FROM   knowledge_passages
		WHERE  knowledge_base_id = $2
		ORDER  BY distance
		LIMIT  $3`

	rows, err := c.pool.Query(ctx, q, queryVec, knowledgeBaseID, topK)
	if err != nil {
		return nil, fmt.Errorf("pgvector: search: %w", err)
	}
	passages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (knowledge.Passage, error) {
		var p knowledge.Passage
		var distance float64
		if err := row.Scan(&p.ID, &p.Content, &distance); err != nil {
			return knowledge.Passage{}, err
		}
		p.Score = 1 - distance
		return p, nil
	})
	if err != nil {
		return nil, fmt.Errorf("pgvector: scan rows: %w", err)
	}
	if passages == nil {
		passages = []knowledge.Passage{}
	}
	return passages, nil
}

// Query implements knowledge.Client. It runs Search, then asks the LLM
// client to synthesize a short answer grounded only in the retrieved
// passages.
func (c *Client) Query(ctx context.Context, knowledgeBaseID, query string) (string, []string, error) {
	passages, err := c.Search(ctx, knowledgeBaseID, query, 5)
	if err != nil {
		return "", nil, err
	}
	if len(passages) == 0 {
		return "", nil, nil
	}

	var sources []string
	var passageText strings.Builder
	for i, p := range passages {
		sources = append(sources, p.ID)
		fmt.Fprintf(&passageText, "[%d] %s\n", i+1, p.Content)
	}

	messages := []llm.Message{
		{
			Role: llm.RoleSystem,
			Content: "Answer the user's question using only the numbered passages below. " +
				"If the passages don't contain the answer, say you don't know.\n\n" + passageText.String(),
		},
		{Role: llm.RoleUser, Content: query},
	}
	resp, err := c.llm.Generate(ctx, messages, nil)
	if err != nil {
		return "", nil, fmt.Errorf("pgvector: synthesize answer: %w", err)
	}
	return resp.Content, sources, nil
}
