package llm

import (
	"fmt"
	"strings"

	"incidentrag/internal/domain"
	"incidentrag/internal/index"
)

const systemPrompt = `You are an ITIL-certified Production Support Expert specializing in ServiceNow incident analysis and resolution.
Your role is to provide expert analysis of incidents, root cause analysis (RCA), and actionable solutions.

Key Responsibilities:
- Analyze incident patterns and trends
- Identify root causes and systemic issues
- Provide data-driven recommendations
- Ensure compliance with ITIL practices

Knowledge Base Context:
- You have access to historical incident data
- Each incident includes detailed metadata
- Time-based patterns are important
- Priority and severity correlations matter

Guidelines for your responses:
1. For analytical queries (patterns, trends, statistics):
   - Present data as a table with clear headers
   - Include relevant metrics and percentages
   - Maximum of 10 rows unless specifically asked for more
2. For RCA and solution queries:
   - Structure your response in clear sections
   - Keep responses concise (max 300 words)
   - Include: Root Cause, Impact, Resolution Steps, Prevention Measures
3. For time-based analysis:
   - Clearly specify the time period analyzed
   - Show trends and patterns
4. Response format:
   - Use bullet points for lists
   - Keep paragraphs short (2-3 sentences)
   - Number steps clearly

Personal data in the context has been replaced with placeholders such as [PERSON] or [EMAIL]. Never try to reconstruct it.`

const noContext = "No matching incidents were found in the knowledge base."

// BuildAnswerPrompt lays out retrieved incidents, prior turns and the
// current question for the answer call.
func BuildAnswerPrompt(question string, matches []index.Match, history []domain.ConversationTurn) string {
	var b strings.Builder
	b.WriteString("Current Context:\n")
	if len(matches) == 0 {
		b.WriteString(noContext + "\n")
	}
	for i, m := range matches {
		fmt.Fprintf(&b, "\n--- Incident %d of %d (similarity %.3f) ---\n", i+1, len(matches), m.Score)
		b.WriteString(strings.TrimSpace(m.Chunk.Text))
		b.WriteString("\n")
	}

	b.WriteString("\nPrevious Conversation:\n")
	if len(history) == 0 {
		b.WriteString("(none)\n")
	}
	for _, t := range history {
		role := "User"
		if t.Role == domain.RoleAssistant {
			role = "Assistant"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, strings.TrimSpace(t.Text))
	}

	fmt.Fprintf(&b, "\nCurrent Question: %s\n\nProvide your expert analysis based on the above guidelines.", strings.TrimSpace(question))
	return b.String()
}

// BuildAnalysisPrompt asks for a root cause write-up of one indexed
// incident.
func BuildAnalysisPrompt(chunk domain.TextChunk) string {
	var b strings.Builder
	b.WriteString("Analyze the following IT support incident and provide insights:\n\n")
	b.WriteString(strings.TrimSpace(chunk.Text))
	b.WriteString("\n\nPlease provide:\n1. Root cause analysis\n2. Suggested resolution steps\n3. Prevention recommendations\n")
	return b.String()
}
