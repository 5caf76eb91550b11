package server

import (
	"time"

	"github.com/smallnest/pdfqa/memory"
	"github.com/smallnest/pdfqa/rag"
)

// IngestRequest names a file on the server's disk. Uploads use multipart instead.
type IngestRequest struct {
	Path string `json:"path"`
}

// AskRequest is one question. An empty SessionID starts a new session.
type AskRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"sessionId"`
}

// Source is a chunk the answer was grounded on.
type Source struct {
	Content string  `json:"content"`
	Source  string  `json:"source,omitempty"`
	Page    *int    `json:"page,omitempty"`
	Score   float64 `json:"score"`
}

// HistoryMessage is one message of a session window.
type HistoryMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// AskResponse carries the answer as Markdown and as sanitized HTML.
type AskResponse struct {
	SessionID         string           `json:"sessionId"`
	Answer            string           `json:"answer"`
	AnswerHTML        string           `json:"answerHtml"`
	GeneratedQuestion string           `json:"generatedQuestion,omitempty"`
	Sources           []Source         `json:"sources"`
	History           []HistoryMessage `json:"history"`
}

// HistoryResponse is the window of one session.
type HistoryResponse struct {
	SessionID string           `json:"sessionId"`
	History   []HistoryMessage `json:"history"`
}

// HealthResponse reports the index size.
type HealthResponse struct {
	Status    string `json:"status"`
	Documents int    `json:"documents"`
	Dimension int    `json:"dimension"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
}

func toSources(results []rag.DocumentSearchResult) []Source {
	out := make([]Source, 0, len(results))
	for _, r := range results {
		s := Source{
			Content: r.Document.Content,
			Source:  r.Document.Source(),
			Score:   r.Score,
		}
		if page, ok := r.Document.Page(); ok {
			s.Page = &page
		}
		out = append(out, s)
	}
	return out
}

func toHistory(msgs []*memory.Message) []HistoryMessage {
	out := make([]HistoryMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, HistoryMessage{Role: m.Role, Content: m.Content, Timestamp: m.Timestamp})
	}
	return out
}
