package chat

import "fmt"

const ragSystemPrompt = `You are a helpful AI assistant with access to a knowledge base of documents.
When answering questions:
1. Use information from the provided context when available
2. Be precise and cite specific details from documents
3. If the context doesn't contain relevant information, say so clearly
4. Provide structured, easy-to-read responses`

const plainSystemPrompt = "You are a helpful AI assistant."

const rewriteInstruction = `Rewrite the user's question into a concise query optimized for semantic document retrieval.
Keep the meaning intact, drop filler words, and expand ambiguous references.
Return only the rewritten query, nothing else.`

// QueryType selects a specialized analysis prompt. Values are validated at
// the API boundary; there is no silent fallback for typos.
type QueryType string

const (
	QueryFactual    QueryType = "factual"
	QueryAnalytical QueryType = "analytical"
	QueryComplex    QueryType = "complex"
	QueryForward    QueryType = "forward"
)

func ParseQueryType(raw string) (QueryType, error) {
	switch QueryType(raw) {
	case QueryFactual, QueryAnalytical, QueryComplex, QueryForward:
		return QueryType(raw), nil
	default:
		return "", fmt.Errorf("unknown query type: %q", raw)
	}
}

const analysisBasePrompt = `You are a document analyst assistant. When answering questions, always:
1. Use specific numerical data from the document
2. Provide clear comparisons when asked
3. Explain underlying reasons for observed changes
4. Consider both direct and indirect effects
`

// Immutable prompt table keyed by the enumerated query type.
var analysisPrompts = map[QueryType]string{
	QueryFactual: analysisBasePrompt +
		"Focus on exact figures, dates, and specific events mentioned in the document. " +
		"Always include numerical values when available.",
	QueryAnalytical: analysisBasePrompt +
		"Provide detailed comparative analysis by: \n" +
		"1. Citing specific numbers for each item compared\n" +
		"2. Explaining why different items behaved differently\n" +
		"3. Highlighting contrasting movements\n" +
		"4. Discussing area-specific impacts",
	QueryComplex: analysisBasePrompt +
		"Analyze interconnected relationships by: \n" +
		"1. Identifying direct cause-effect relationships\n" +
		"2. Explaining secondary effects\n" +
		"3. Highlighting interconnections\n" +
		"4. Providing specific examples with data",
	QueryForward: analysisBasePrompt +
		"Focus on future implications by: \n" +
		"1. Identifying specific risks mentioned\n" +
		"2. Explaining strategic considerations\n" +
		"3. Highlighting potential impacts\n" +
		"4. Discussing suggested positioning",
}
