// Package retriever turns a vector store into a query-to-documents retriever.
package retriever
