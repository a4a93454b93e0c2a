package llm

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ebbing-ai/memorybank/memory"
)

// Metadata type values the chat loop stamps on stored exchanges.
const (
	typeUserQuery         = "user_query"
	typeAssistantResponse = "assistant_response"
)

// Augmented wires a Client to the memory engine: every chat turn
// retrieves relevant memories into the system prompt, then stores the
// user query and the assistant response as new memories. Over time the
// forgetting sweeps thin out the exchanges nobody asks about again.
type Augmented struct {
	engine *memory.Engine
	client Client
	system string
}

// NewAugmented creates the memory-augmented chat loop. system is the
// base system prompt; retrieved memories are appended to it per turn.
func NewAugmented(engine *memory.Engine, client Client, system string) *Augmented {
	if system == "" {
		system = "You are a helpful assistant with access to memories from previous conversations."
	}
	return &Augmented{engine: engine, client: client, system: system}
}

// RecalledMemory is a memory that informed a chat response, without
// the embedding payload.
type RecalledMemory struct {
	ID      string  `json:"memory_id"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// ChatResult is one completed chat turn.
type ChatResult struct {
	Response      string           `json:"response"`
	MemoriesUsed  []RecalledMemory `json:"memories_used"`
	StoredQueryID string           `json:"stored_query_id,omitempty"`
	StoredReplyID string           `json:"stored_reply_id,omitempty"`
}

// Chat runs one turn: retrieve, generate, remember.
//
// Retrieval failure aborts the turn. Storage failure does not: the
// user already has a usable response by then, so the turn degrades to
// a stateless exchange and the loss is logged.
func (a *Augmented) Chat(ctx context.Context, message string, topK int, filter memory.Metadata) (*ChatResult, error) {
	recalled, err := a.engine.Retrieve(ctx, message, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("recall memories: %w", err)
	}

	resp, err := a.client.Generate(ctx, a.systemPrompt(recalled), message)
	if err != nil {
		return nil, err
	}

	used := make([]RecalledMemory, 0, len(recalled))
	for _, sr := range recalled {
		used = append(used, RecalledMemory{ID: sr.Record.ID, Content: sr.Record.Content, Score: sr.Score})
	}
	result := &ChatResult{Response: resp, MemoriesUsed: used}

	queryID, err := a.engine.Store(ctx, message, memory.Metadata{"type": typeUserQuery})
	if err != nil {
		log.Printf("[CHAT] Failed to store user query: %v", err)
	} else {
		result.StoredQueryID = queryID
	}

	replyMD := memory.Metadata{"type": typeAssistantResponse}
	if queryID != "" {
		replyMD["query_id"] = queryID
	}
	replyID, err := a.engine.Store(ctx, resp, replyMD)
	if err != nil {
		log.Printf("[CHAT] Failed to store assistant response: %v", err)
	} else {
		result.StoredReplyID = replyID
	}

	return result, nil
}

// systemPrompt appends recalled memories to the base system prompt in
// rank order, each with its age so the model can weigh staleness
// itself.
func (a *Augmented) systemPrompt(recalled []memory.ScoredRecord) string {
	if len(recalled) == 0 {
		return a.system
	}

	var sb strings.Builder
	sb.WriteString(a.system)
	sb.WriteString("\n\nRelevant memories from previous conversations:\n")
	now := time.Now()
	for _, sr := range recalled {
		sb.WriteString(fmt.Sprintf("- [%s ago] %s\n", humanAge(now.Sub(sr.Record.CreatedAt)), sr.Record.Content))
	}
	return sb.String()
}

func humanAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "moments"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
