// Package pdfqa is a conversational question answering assistant over PDF
// documents.
//
// A document is loaded page by page, split into overlapping chunks, embedded
// and indexed. Questions go through a conversational retrieval chain: a
// follow-up question is first rewritten into a standalone one using the
// recent conversation, the closest chunks are retrieved, and the model
// answers from those chunks. The last five turns are kept in a window memory
// that can be persisted per session.
//
// # Packages
//
//   - rag: core types (Document, Embedder, VectorStore, Retriever) and
//     langchaingo adapters
//   - rag/loader: PDF, text, HTML and CSV loaders
//   - rag/splitter: recursive character splitter (1000 characters, 200 overlap)
//   - rag/store: in-memory and pgvector indexes
//   - rag/retriever: similarity, score threshold and MMR retrieval
//   - memory: conversation window memory
//   - store: chat history backends (memory, file, redis, sqlite, postgres)
//   - chain: the conversational retrieval chain
//   - graph: the state graph the chain runs on
//   - provider, llms/openai: Ollama and OpenAI-compatible models
//   - config, assistant, server: wiring and the HTTP API
//   - log: leveled logging on golog
//
// # Quick Start
//
// With Ollama running and llama2 pulled:
//
//	go run ./cmd/pdfqa -pdf "Assignment Support Document.pdf"
//
// asks the demo questions and prints the remembered history. Use -ask to ask
// your own questions, -chat for an interactive session and -server to serve
// the HTTP API:
//
//	go run ./cmd/pdfqa -pdf budget.pdf -ask "What is direct taxes?" -ask "Any change in it?"
//	go run ./cmd/pdfqa -server -index budget.idx -history-store sqlite
//
// From Go:
//
//	a, err := assistant.New(ctx, config.Default())
//	if err != nil {
//		return err
//	}
//	defer a.Close()
//
//	if _, err := a.Ingest(ctx, "budget.pdf"); err != nil {
//		return err
//	}
//	out, err := a.Ask(ctx, "What is this document about?")
package pdfqa
