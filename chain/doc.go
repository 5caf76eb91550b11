// Package chain answers questions about indexed documents while keeping
// track of the conversation.
//
// ConversationalRetrievalChain runs four steps as a graph.StateGraph:
//
//	condense_question -> retrieve -> generate -> save_memory
//
// A follow-up question is first rewritten into a standalone question using
// the chat history, the retriever fetches the chunks relevant to it, the
// chunks are stuffed into the QA prompt, and the finished turn is appended to
// the window memory.
package chain
