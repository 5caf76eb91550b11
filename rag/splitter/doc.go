// Package splitter cuts documents into overlapping chunks.
//
// RecursiveCharacterTextSplitter tries separators in order (paragraphs, lines,
// words, characters), merges the resulting pieces into chunks of at most
// chunkSize runes, and starts each new chunk with up to chunkOverlap runes of
// the previous one. Defaults are 1000 and 200.
package splitter
