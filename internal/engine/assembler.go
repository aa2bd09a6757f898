package engine

import (
	"fmt"
	"strings"

	"github.com/engramlabs/engram/pkg/types"
)

// Budget ratios for each prompt section. The reserve is headroom for
// provider-side wrappers; it is never rendered, and it takes its share
// of any budget donated by empty sections.
const (
	ratioSystem   = 0.15
	ratioEntity   = 0.10
	ratioMemories = 0.20
	ratioFewShot  = 0.05
	ratioUser     = 0.40
	ratioReserve  = 0.10
)

// Memories at or above this importance get a marker in the rendered
// context so the model treats them as load-bearing.
const importanceMarkerThreshold = 0.8

// ContextInput carries the raw material for one assembled prompt. Empty
// fields surrender their token budget to the populated ones.
type ContextInput struct {
	SystemPrompt    string
	Entity          *types.EntityProfile
	Memories        []types.RetrievalResult
	FewShotExamples []string
	UserContent     string
}

// AssembledContext is the rendered prompt plus its token accounting.
// MemoryText and EntityText expose those sections on their own so
// callers building chat-style requests can place them separately from
// the joined Text.
type AssembledContext struct {
	Text            string
	MemoryText      string
	EntityText      string
	EstimatedTokens int
	MemoriesUsed    int
}

// ContextAssembler renders retrieval output and entity knowledge into a
// prompt that fits a fixed token budget. Sections get proportional
// budgets; list sections add whole items and stop before overflowing,
// never cutting an item in half.
type ContextAssembler struct {
	totalBudget int
}

// NewContextAssembler creates an assembler with the given total token
// budget.
func NewContextAssembler(totalBudget int) *ContextAssembler {
	if totalBudget <= 0 {
		totalBudget = 4096
	}
	return &ContextAssembler{totalBudget: totalBudget}
}

// Assemble renders input into a single prompt within the token budget.
func (a *ContextAssembler) Assemble(input ContextInput) AssembledContext {
	budgets := a.sectionBudgets(input)

	var sections []string
	used := 0
	memoriesUsed := 0
	entityText := ""
	memoryText := ""

	if input.SystemPrompt != "" {
		s := TruncateToBudget(input.SystemPrompt, budgets.system)
		if s != "" {
			sections = append(sections, s)
			used += EstimateTokens(s)
		}
	}

	if input.Entity != nil {
		s := TruncateToBudget(renderEntity(input.Entity), budgets.entity)
		if s != "" {
			sections = append(sections, s)
			used += EstimateTokens(s)
			entityText = s
		}
	}

	if len(input.Memories) > 0 {
		s, n := renderMemories(input.Memories, budgets.memories)
		if s != "" {
			sections = append(sections, s)
			used += EstimateTokens(s)
			memoriesUsed = n
			memoryText = s
		}
	}

	if len(input.FewShotExamples) > 0 {
		s := renderFewShot(input.FewShotExamples, budgets.fewShot)
		if s != "" {
			sections = append(sections, s)
			used += EstimateTokens(s)
		}
	}

	if input.UserContent != "" {
		s := TruncateToBudget(input.UserContent, budgets.user)
		if s != "" {
			sections = append(sections, s)
			used += EstimateTokens(s)
		}
	}

	return AssembledContext{
		Text:            strings.Join(sections, "\n\n"),
		MemoryText:      memoryText,
		EntityText:      entityText,
		EstimatedTokens: used,
		MemoriesUsed:    memoriesUsed,
	}
}

type sectionBudgets struct {
	system, entity, memories, fewShot, user, reserve int
}

// sectionBudgets splits the total budget across populated sections.
// Ratios of empty sections are folded into the populated ones in
// proportion to their own ratios. The reserve is always counted as
// populated, so it absorbs its proportional share of the donated
// budget without ever being rendered.
func (a *ContextAssembler) sectionBudgets(input ContextInput) sectionBudgets {
	type part struct {
		ratio    float64
		present  bool
		assigned *int
	}
	var b sectionBudgets
	parts := []part{
		{ratioSystem, input.SystemPrompt != "", &b.system},
		{ratioEntity, input.Entity != nil, &b.entity},
		{ratioMemories, len(input.Memories) > 0, &b.memories},
		{ratioFewShot, len(input.FewShotExamples) > 0, &b.fewShot},
		{ratioUser, input.UserContent != "", &b.user},
		{ratioReserve, true, &b.reserve},
	}

	presentRatio := 0.0
	spare := 0.0
	contentPresent := false
	for i, p := range parts {
		if p.present {
			presentRatio += p.ratio
			if i < len(parts)-1 {
				contentPresent = true
			}
		} else {
			spare += p.ratio
		}
	}
	if !contentPresent {
		return b
	}

	for _, p := range parts {
		if !p.present {
			continue
		}
		ratio := p.ratio + spare*(p.ratio/presentRatio)
		*p.assigned = int(ratio * float64(a.totalBudget))
	}
	return b
}

func renderEntity(e *types.EntityProfile) string {
	var sb strings.Builder
	name := e.DisplayName
	if name == "" {
		name = e.EntityName
	}
	fmt.Fprintf(&sb, "About %s (%s on %s):\n", name, e.EntityType, e.Platform)
	if e.Summary != "" {
		fmt.Fprintf(&sb, "%s\n", e.Summary)
	}
	if e.Sentiment != "" {
		fmt.Fprintf(&sb, "Current sentiment: %s (%.2f)\n", e.Sentiment, e.SentimentScore)
	}
	if len(e.Interests) > 0 {
		fmt.Fprintf(&sb, "Interests: %s\n", strings.Join(e.Interests, ", "))
	}
	fmt.Fprintf(&sb, "Trust level: %.2f\n", e.TrustLevel)
	fmt.Fprintf(&sb, "Interactions so far: %d", e.InteractionCount)
	return sb.String()
}

// renderMemories emits memories best-first as bullets, adding whole
// items until the next one would exceed the budget. Returns the block
// and the number of memories included.
func renderMemories(memories []types.RetrievalResult, budget int) (string, int) {
	header := "Relevant memories:"
	used := EstimateTokens(header)
	if used > budget {
		return "", 0
	}

	var sb strings.Builder
	sb.WriteString(header)
	count := 0
	for _, m := range memories {
		line := "\n- " + m.Node.Content
		if m.Node.Importance >= importanceMarkerThreshold {
			line = "\n- [key] " + m.Node.Content
		}
		cost := EstimateTokens(line)
		if used+cost > budget {
			break
		}
		sb.WriteString(line)
		used += cost
		count++
	}
	if count == 0 {
		return "", 0
	}
	return sb.String(), count
}

func renderFewShot(examples []string, budget int) string {
	header := "Examples of your past replies:"
	used := EstimateTokens(header)
	if used > budget {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(header)
	added := 0
	for _, ex := range examples {
		line := "\n" + ex
		cost := EstimateTokens(line)
		if used+cost > budget {
			break
		}
		sb.WriteString(line)
		used += cost
		added++
	}
	if added == 0 {
		return ""
	}
	return sb.String()
}
