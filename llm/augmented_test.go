package llm_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ebbing-ai/memorybank/config"
	"github.com/ebbing-ai/memorybank/llm"
	"github.com/ebbing-ai/memorybank/memory"
	"github.com/ebbing-ai/memorybank/memory/embedder/mock"
	"github.com/ebbing-ai/memorybank/memory/store/chromem"
)

// scriptedClient returns a canned response and records the prompts it
// was given.
type scriptedClient struct {
	response   string
	lastSystem string
	lastPrompt string
}

func (c *scriptedClient) Generate(ctx context.Context, system, prompt string) (string, error) {
	c.lastSystem = system
	c.lastPrompt = prompt
	return c.response, nil
}

func (c *scriptedClient) Info() llm.Info {
	return llm.Info{Provider: "scripted", Model: "test"}
}

func newChatEngine(t *testing.T) *memory.Engine {
	t.Helper()
	embedder := mock.NewWithDimensions(32)
	index, err := chromem.New("chat-test", embedder.Dimensions())
	if err != nil {
		t.Fatalf("Failed to create index: %v", err)
	}
	cfg := &config.Retention{
		DecayRate:           0.9,
		ForgettingThreshold: 0.1,
		AccessBoost:         0.1,
		ImportanceCap:       2.0,
		DefaultTopK:         3,
		BaseStrength:        24 * time.Hour,
		SweepInterval:       time.Hour,
		MaintenanceInterval: 24 * time.Hour,
	}
	return memory.NewEngine(index, embedder, cfg)
}

func TestChatInjectsMemoriesAndStoresExchange(t *testing.T) {
	ctx := context.Background()
	engine := newChatEngine(t)
	client := &scriptedClient{response: "You like green tea."}
	chat := llm.NewAugmented(engine, client, "Base prompt.")

	if _, err := engine.Store(ctx, "what do I drink", memory.Metadata{"type": "preference"}); err != nil {
		t.Fatalf("Failed to store memory: %v", err)
	}

	// Same text as the stored memory so the mock embedder guarantees a
	// similarity hit.
	result, err := chat.Chat(ctx, "what do I drink", 3, nil)
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	if result.Response != "You like green tea." {
		t.Fatalf("Response = %q", result.Response)
	}
	if len(result.MemoriesUsed) == 0 {
		t.Fatal("Expected at least one recalled memory")
	}
	if !strings.Contains(client.lastSystem, "Relevant memories from previous conversations:") {
		t.Fatalf("System prompt missing memory context: %q", client.lastSystem)
	}
	if !strings.Contains(client.lastSystem, "what do I drink") {
		t.Fatalf("System prompt missing recalled content: %q", client.lastSystem)
	}
	if client.lastPrompt != "what do I drink" {
		t.Fatalf("User prompt = %q", client.lastPrompt)
	}

	if result.StoredQueryID == "" || result.StoredReplyID == "" {
		t.Fatalf("Exchange not stored: %+v", result)
	}

	// One pre-existing memory plus the stored query and response.
	stats, err := engine.Stats(ctx)
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if stats.TotalRecords != 3 {
		t.Fatalf("TotalRecords = %d, want 3", stats.TotalRecords)
	}
}

func TestChatOnEmptyStore(t *testing.T) {
	ctx := context.Background()
	engine := newChatEngine(t)
	client := &scriptedClient{response: "Hello!"}
	chat := llm.NewAugmented(engine, client, "Base prompt.")

	result, err := chat.Chat(ctx, "hi there", 0, nil)
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if len(result.MemoriesUsed) != 0 {
		t.Fatalf("Recalled %d memories from an empty store", len(result.MemoriesUsed))
	}
	if client.lastSystem != "Base prompt." {
		t.Fatalf("System prompt should be bare on empty store: %q", client.lastSystem)
	}
}
