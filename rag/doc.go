// Package rag defines the document model and the component interfaces of the
// question answering pipeline: loaders, splitters, embedders, vector stores and
// retrievers.
//
// Concrete implementations live in the subpackages:
//
//   - loader: PDF, text, HTML and CSV loaders
//   - splitter: recursive character splitting with overlap
//   - store: in-memory flat index and pgvector
//   - retriever: similarity, score threshold and MMR retrieval
//
// The adapters in this package bridge github.com/tmc/langchaingo loaders,
// text splitters and embedders into these interfaces, and expose a Retriever
// back to langchaingo as a schema.Retriever.
//
// A typical ingestion looks like:
//
//	docs, _ := loader.NewPDFLoader("budget.pdf").Load(ctx)
//	chunks, _ := splitter.NewRecursiveCharacterTextSplitter().SplitDocuments(docs)
//	vs := store.NewInMemoryVectorStore(embedder)
//	_ = store.FromDocuments(ctx, chunks, embedder, vs)
//	r := retriever.NewVectorRetriever(vs, embedder, rag.RetrievalConfig{K: 4})
package rag
