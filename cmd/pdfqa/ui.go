package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/smallnest/pdfqa/assistant"
	"github.com/smallnest/pdfqa/chain"
	"github.com/smallnest/pdfqa/memory"
	"github.com/smallnest/pdfqa/rag"
)

var (
	headingStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1).
			MarginTop(1)
	questionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#04B575"))
	answerStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(0, 1).
			Width(100)
	sourceStyle = lipgloss.NewStyle().Faint(true)
	roleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F25D94"))
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5F87"))
)

func printHeading(title string) {
	fmt.Println(headingStyle.Render(title))
}

func printIngest(r *assistant.IngestReport) {
	printHeading("Ingested " + r.Source)
	fmt.Printf("%d pages, %d chunks, %d-dimensional embeddings\n", r.Pages, r.Chunks, r.Dimension)
}

func printQA(question, answer string) {
	fmt.Println(questionStyle.Render("Q: " + question))
	fmt.Println(answerStyle.Render(answer))
}

func printAnswer(question string, out *chain.ChainOutput) {
	printQA(question, out.Answer)
	if out.GeneratedQuestion != "" && out.GeneratedQuestion != question {
		fmt.Println(sourceStyle.Render("searched for: " + out.GeneratedQuestion))
	}
	for _, s := range out.SourceDocuments {
		fmt.Println(sourceStyle.Render("  " + describe(s)))
	}
}

func printSource(query string, r rag.DocumentSearchResult) {
	fmt.Println(questionStyle.Render("Query: " + query))
	fmt.Println(sourceStyle.Render(describe(r)))
	fmt.Println(answerStyle.Render(r.Document.Content))
}

func printHistory(msgs []*memory.Message) {
	for _, m := range msgs {
		fmt.Printf("%s %s\n", roleStyle.Render(m.Role+":"), m.Content)
	}
}

func describe(r rag.DocumentSearchResult) string {
	var b strings.Builder
	if src := r.Document.Source(); src != "" {
		b.WriteString(src)
	}
	if page, ok := r.Document.Page(); ok {
		fmt.Fprintf(&b, " p.%d", page+1)
	}
	fmt.Fprintf(&b, " (score %.3f)", r.Score)
	return strings.TrimSpace(b.String())
}
