package rag

import (
	"fmt"
	"strings"

	"pdfchat/internal/ai"
	"pdfchat/internal/vectorstore"
)

const queryPromptTemplate = `Context information is below.
---------------------
%s
---------------------
Given the context information and not prior knowledge, answer the query.
Query: %s
Answer: `

const contextSystemPromptTemplate = `The following is a friendly conversation between a user and an AI assistant.
The assistant is talkative and provides lots of specific details from its context.
If the assistant does not know the answer to a question, it truthfully says it
does not know.

Here are the relevant documents for the context:

%s

Instruction: Based on the above documents, provide a detailed answer for the user question below.
Answer "don't know" if not present in the document.`

const condensePromptTemplate = `Given the following conversation between a user and an AI assistant and a follow up question from user,
rephrase the follow up question to be a standalone question.

Chat History:
%s
Follow Up Input: %s
Standalone question:`

// formatContext renders retrieved chunks with their metadata header.
func formatContext(matches []vectorstore.Match) string {
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		var b strings.Builder
		if m.PageLabel != "" {
			fmt.Fprintf(&b, "page_label: %s\n", m.PageLabel)
		}
		fmt.Fprintf(&b, "file_name: %s\n\n%s", m.FileName, strings.TrimSpace(m.Text))
		parts = append(parts, b.String())
	}
	return strings.Join(parts, "\n\n")
}

func formatHistory(history []ai.ChatMessage) string {
	var b strings.Builder
	for _, m := range history {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return b.String()
}

func queryPrompt(matches []vectorstore.Match, question string) string {
	return fmt.Sprintf(queryPromptTemplate, formatContext(matches), question)
}

func contextSystemPrompt(matches []vectorstore.Match) string {
	return fmt.Sprintf(contextSystemPromptTemplate, formatContext(matches))
}

func condensePrompt(history []ai.ChatMessage, question string) string {
	return fmt.Sprintf(condensePromptTemplate, formatHistory(history), question)
}
