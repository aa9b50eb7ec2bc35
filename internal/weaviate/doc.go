// Package weaviate implements storage.VectorStore on a Weaviate class whose
// objects carry caller-supplied vectors.
//
// Objects live in a single class (CodeChunk by default) created with
// Vectorizer "none" and cosine distance. Search converts distance back to
// similarity so scores line up with the SQLite store.
//
// Basic usage:
//
//	store, err := weaviate.Dial(ctx, weaviate.Config{URL: "http://localhost:8080"}, logger)
//	if err != nil {
//	    return err
//	}
//	hits, err := store.Search(ctx, vector, 10, storage.VectorFilter{Language: "go"})
package weaviate
