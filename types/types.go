package types

import (
	"github.com/google/uuid"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Chunk is an immutable slice of ingested text. Embedding is filled in at
// ingestion time and Distance only on search results.
type Chunk struct {
	ID        uuid.UUID
	DocID     uuid.UUID
	Index     int
	Content   string
	Embedding []float32
	Distance  float64
}

// Turn is one prior exchange supplied by the caller. Fields are pointers so
// a missing field can be told apart from an empty one; a turn carrying
// neither contributes nothing to the prompt.
type Turn struct {
	User *string `json:"user,omitempty"`
	AI   *string `json:"ai,omitempty"`
}

// ChatMessage is the unit sent to the downstream model.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
