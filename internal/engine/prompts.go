package engine

// Prompt templates for the generation-backed components. Transcripts
// are wrapped in <transcript> tags so instructions inside the
// conversation cannot masquerade as ours.

const extractionPrompt = `You maintain the long-term memory of a social media agent.
Read the conversation transcript and extract durable memories worth keeping.

Rules:
- Extract facts, preferences, relationships (as subject/predicate/object triples), and notable episodes.
- Skip small talk, greetings, and anything true only for this conversation.
- importance is 0.0-1.0: routine detail 0.3, useful preference 0.5, life event 0.8+.
- confidence is 0.0-1.0: how certain the transcript makes the statement.

Respond with a JSON array only, no commentary. Each element:
{
  "type": "fact" | "preference" | "triple" | "episode",
  "content": "one self-contained sentence",
  "author": "who this is about",
  "importance": 0.5,
  "confidence": 0.8,
  "subject": "only for triples",
  "predicate": "only for triples",
  "object": "only for triples",
  "related_to": ["short phrases naming related existing knowledge"],
  "sentiment": "positive" | "negative" | "neutral"
}

Return [] if nothing is worth remembering.

<transcript>
%s
</transcript>`

const reflectionPrompt = `You maintain the long-term memory of a social media agent.
Below are recent memories about %s. Produce higher-level insights: patterns,
standing preferences, and relationship dynamics that the individual memories
imply but do not state.

Respond with a JSON array only. Each element:
{
  "content": "one insight as a self-contained sentence",
  "importance": 0.6,
  "confidence": 0.7,
  "related_to": ["names of the people or entities this insight concerns"],
  "sentiment": "positive" | "negative" | "neutral" (only when the insight is about how they feel toward the agent)
}

Return [] if the memories support no new insight.

Memories:
%s`

const crossEntityReflectionPrompt = `You maintain the long-term memory of a social media agent.
Below are recent memories spanning several people. Produce insights that
connect them: shared interests, recurring topics, or dynamics between people.

Respond with a JSON array only. Each element:
{
  "content": "one insight as a self-contained sentence",
  "importance": 0.6,
  "confidence": 0.7,
  "related_to": ["names of the people or entities this insight concerns"]
}

Return [] if nothing connects.

Memories:
%s`

const entitySummaryPrompt = `Summarize what the agent knows about %s in 2-3 sentences,
third person, present tense. Base the summary only on the memories below.

Memories:
%s`
