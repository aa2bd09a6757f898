package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramlabs/engram/pkg/types"
)

func memResult(content string, importance float64) types.RetrievalResult {
	return types.RetrievalResult{
		Node:  types.KnowledgeNode{Content: content, Importance: importance},
		Score: importance,
	}
}

func TestAssembleIncludesAllSections(t *testing.T) {
	a := NewContextAssembler(2048)
	out := a.Assemble(ContextInput{
		SystemPrompt: "You are a helpful social agent.",
		Entity: &types.EntityProfile{
			Platform:         "discord",
			EntityName:       "alice",
			DisplayName:      "Alice",
			EntityType:       "person",
			Summary:          "A long-time correspondent who enjoys gardening.",
			Sentiment:        "positive",
			SentimentScore:   0.6,
			Interests:        []string{"gardening", "chess"},
			InteractionCount: 12,
		},
		Memories:        []types.RetrievalResult{memResult("alice grows tomatoes", 0.5)},
		FewShotExamples: []string{"Sounds lovely, how are the tomatoes doing?"},
		UserContent:     "any tips for my garden?",
	})

	assert.Contains(t, out.Text, "helpful social agent")
	assert.Contains(t, out.Text, "About Alice")
	assert.Contains(t, out.Text, "alice grows tomatoes")
	assert.Contains(t, out.Text, "how are the tomatoes doing")
	assert.Contains(t, out.Text, "any tips for my garden")
	assert.Equal(t, 1, out.MemoriesUsed)
	assert.LessOrEqual(t, out.EstimatedTokens, 2048)

	assert.Contains(t, out.EntityText, "About Alice")
	assert.Contains(t, out.MemoryText, "alice grows tomatoes")
	assert.NotContains(t, out.MemoryText, "About Alice")
	assert.NotContains(t, out.EntityText, "alice grows tomatoes")
}

func TestAssembleExposesSeparateFragments(t *testing.T) {
	a := NewContextAssembler(1024)
	out := a.Assemble(ContextInput{
		Entity:      &types.EntityProfile{Platform: "discord", EntityName: "bob", EntityType: "person"},
		Memories:    []types.RetrievalResult{memResult("bob collects vinyl records", 0.5)},
		UserContent: "what should I listen to?",
	})

	assert.True(t, strings.HasPrefix(out.EntityText, "About bob"))
	assert.True(t, strings.HasPrefix(out.MemoryText, "Relevant memories:"))
	assert.Contains(t, out.MemoryText, "bob collects vinyl records")
	assert.NotContains(t, out.EntityText, "what should I listen to?")
	assert.NotContains(t, out.MemoryText, "what should I listen to?")
}

func TestAssembleMarksImportantMemories(t *testing.T) {
	a := NewContextAssembler(1024)
	out := a.Assemble(ContextInput{
		Memories: []types.RetrievalResult{
			memResult("moving to berlin next month", 0.9),
			memResult("likes oat milk", 0.3),
		},
	})

	assert.Contains(t, out.Text, "- [key] moving to berlin next month")
	assert.Contains(t, out.Text, "- likes oat milk")
}

func TestAssembleEmptySectionsDonateBudget(t *testing.T) {
	a := NewContextAssembler(100)
	long := strings.Repeat("word ", 200)

	out := a.Assemble(ContextInput{UserContent: long})

	// With every other section empty the user section and the reserve
	// split the donated budget in proportion to their own ratios.
	assert.Greater(t, out.EstimatedTokens, 40)
	assert.LessOrEqual(t, out.EstimatedTokens, 80)
}

func TestBudgetDonationIncludesReserve(t *testing.T) {
	a := NewContextAssembler(1000)

	b := a.sectionBudgets(ContextInput{UserContent: "hello"})

	// user 0.4 and reserve 0.1 split the 0.5 donated by the empty
	// sections 4:1, so the reserve grows to a fifth of the budget.
	assert.InDelta(t, 800, b.user, 1)
	assert.InDelta(t, 200, b.reserve, 1)
}

func TestAssembleReserveIsNeverSpent(t *testing.T) {
	a := NewContextAssembler(200)
	long := strings.Repeat("alpha beta gamma ", 100)

	out := a.Assemble(ContextInput{
		SystemPrompt:    long,
		Memories:        []types.RetrievalResult{memResult(long, 0.5)},
		FewShotExamples: []string{long},
		UserContent:     long,
		Entity:          &types.EntityProfile{EntityName: "bob", Summary: long},
	})

	assert.LessOrEqual(t, out.EstimatedTokens, 180)
}

func TestAssembleNeverSplitsAMemory(t *testing.T) {
	a := NewContextAssembler(60)
	out := a.Assemble(ContextInput{
		Memories: []types.RetrievalResult{
			memResult("first memory fits fine", 0.5),
			memResult(strings.Repeat("overflowing ", 100), 0.5),
		},
		UserContent: "hello",
	})

	assert.Equal(t, 1, out.MemoriesUsed)
	assert.Contains(t, out.Text, "first memory fits fine")
	assert.NotContains(t, out.Text, "overflowing")
}

func TestSectionBudgetsSumToTotal(t *testing.T) {
	const total = 1000
	a := NewContextAssembler(total)

	// Every non-empty combination of present sections.
	for mask := 1; mask < 32; mask++ {
		var input ContextInput
		if mask&1 != 0 {
			input.SystemPrompt = "s"
		}
		if mask&2 != 0 {
			input.Entity = &types.EntityProfile{EntityName: "e"}
		}
		if mask&4 != 0 {
			input.Memories = []types.RetrievalResult{memResult("m", 0.5)}
		}
		if mask&8 != 0 {
			input.FewShotExamples = []string{"f"}
		}
		if mask&16 != 0 {
			input.UserContent = "u"
		}

		b := a.sectionBudgets(input)
		sum := b.system + b.entity + b.memories + b.fewShot + b.user + b.reserve
		assert.LessOrEqual(t, sum, total, "mask %05b over-allocates", mask)
		assert.GreaterOrEqual(t, sum, total-6, "mask %05b loses more than rounding", mask)
	}
}

func TestAssembleEmptyInput(t *testing.T) {
	a := NewContextAssembler(512)
	out := a.Assemble(ContextInput{})
	require.Equal(t, "", out.Text)
	assert.Zero(t, out.EstimatedTokens)
}
