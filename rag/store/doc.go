// Package store provides vector stores for chunk embeddings.
//
// InMemoryVectorStore is a flat index with exact search, comparable to a
// FAISS IndexFlat: every query is scored against every stored vector. It can
// be saved to and loaded from a single file so a PDF need not be re-embedded
// on every run.
//
// PGVectorStore keeps the same data in Postgres using the pgvector extension.
package store
