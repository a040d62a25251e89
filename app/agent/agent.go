package agent

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkoukk/tiktoken-go"

	"ragchat/chunker"
	"ragchat/config"
	"ragchat/model"
	"ragchat/store"
	"ragchat/types"
)

// Agent ties the chunker, embedder and vector index together for the two
// pipelines: ingestion (text -> chunks -> vectors -> index) and retrieval
// (query -> vector -> nearest chunks -> context block).
type Agent struct {
	store        store.VectorStorer
	embedder     model.EmbedderInterface
	chunkSize    int
	chunkOverlap int
	topK         int
}

func New(st store.VectorStorer, embedder model.EmbedderInterface, cfg config.RAGConfig) *Agent {
	return &Agent{
		store:        st,
		embedder:     embedder,
		chunkSize:    cfg.ChunkSize,
		chunkOverlap: cfg.ChunkOverlap,
		topK:         cfg.TopK,
	}
}

// Ingest splits text, embeds every chunk and stores the result under docID.
// Returns the number of chunks ingested.
func (a *Agent) Ingest(ctx context.Context, docID uuid.UUID, text string) (int, error) {
	chunks, err := chunker.Split(text, a.chunkSize, a.chunkOverlap)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := a.embedder.EmbedMany(ctx, texts)
	if err != nil {
		return 0, err
	}
	for i := range chunks {
		chunks[i].DocID = docID
		chunks[i].Embedding = vectors[i]
	}

	if err := a.store.AddChunks(ctx, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// RetrieveContext embeds the query, fetches the top-k nearest chunks and
// joins their text. An empty index yields an empty string, not an error;
// callers then omit the system context message.
func (a *Agent) RetrieveContext(ctx context.Context, query string) (string, error) {
	vec, err := a.embedder.Embed(ctx, query)
	if err != nil {
		return "", err
	}

	chunks, err := a.store.Search(ctx, vec, a.topK)
	if err != nil {
		return "", err
	}

	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Content
	}
	return strings.Join(parts, "\n"), nil
}

// BuildMessages assembles the ordered message list for the downstream model:
// optional system context, history turns in order, then the new user message.
// Turns carrying neither field are skipped. No length validation here; the
// truncation policy belongs to the provider.
func BuildMessages(contextText string, history []types.Turn, userMessage string) []types.ChatMessage {
	var messages []types.ChatMessage
	if contextText != "" {
		messages = append(messages, types.ChatMessage{
			Role:    types.RoleSystem,
			Content: "Context: " + contextText,
		})
	}
	for _, turn := range history {
		if turn.User != nil {
			messages = append(messages, types.ChatMessage{Role: types.RoleUser, Content: *turn.User})
		}
		if turn.AI != nil {
			messages = append(messages, types.ChatMessage{Role: types.RoleAssistant, Content: *turn.AI})
		}
	}
	return append(messages, types.ChatMessage{Role: types.RoleUser, Content: userMessage})
}

// CountTokens sizes the assembled prompt for logging. The gpt-3.5-turbo
// encoding is a close enough proxy across the allowed models.
func CountTokens(messages []types.ChatMessage) (int, error) {
	enc, err := tiktoken.EncodingForModel("gpt-3.5-turbo")
	if err != nil {
		return 0, err
	}
	total := 0
	for _, m := range messages {
		total += len(enc.Encode(m.Content, nil, nil))
	}
	return total, nil
}
