package chain

import (
	"strings"

	"github.com/tmc/langchaingo/prompts"

	"github.com/smallnest/pdfqa/rag"
)

// DefaultCondenseTemplate rewrites a follow-up into a standalone question.
const DefaultCondenseTemplate = `Given the following conversation and a follow up question, rephrase the follow up question to be a standalone question, in its original language.

Chat History:
{{.chat_history}}
Follow Up Input: {{.question}}
Standalone question:`

// DefaultQATemplate stuffs the retrieved chunks in front of the question.
const DefaultQATemplate = `Use the following pieces of context to answer the question at the end. If you don't know the answer, just say that you don't know, don't try to make up an answer.

{{.context}}

Question: {{.question}}
Helpful Answer:`

// DocumentSeparator joins chunks inside the QA prompt.
const DocumentSeparator = "\n\n"

func newCondensePrompt(template string) prompts.PromptTemplate {
	return prompts.NewPromptTemplate(template, []string{"chat_history", "question"})
}

func newQAPrompt(template string) prompts.PromptTemplate {
	return prompts.NewPromptTemplate(template, []string{"context", "question"})
}

// StuffDocuments concatenates the document contents for a prompt.
func StuffDocuments(results []rag.DocumentSearchResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, r.Document.Content)
	}
	return strings.Join(parts, DocumentSeparator)
}
