// Package embedder turns code chunks into canonical-length vectors through an
// ordered list of provider tiers.
//
// # Tiers
//
// A tier is one provider (Jina AI, an OpenAI-compatible endpoint, Ollama or
// the offline feature-hashing provider) with its own rate limiter, token
// quota and health state. Tiers are tried in configuration order; an item
// that one tier cannot embed falls through to the next.
//
//	emb, err := embedder.New(embedder.DefaultConfig(), cache, logger)
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//	emb.Start(ctx) // background recovery probe
//
//	results, err := emb.Embed(ctx, chunks)
//	for i, r := range results {
//	    if r.Err != nil {
//	        // errors.Is(r.Err, types.ErrAllTiersExhausted)
//	        continue
//	    }
//	    store(chunks[i], r.Vector)
//	}
//
// # Health
//
// Health is derived from consecutive failures: none is HEALTHY, fewer than
// FailureThreshold is DEGRADED and anything more is UNAVAILABLE. A success
// resets the count. UNAVAILABLE tiers receive no request traffic until the
// background probe sees them answer again.
//
// # Vectors
//
// Provider output is zero-padded or truncated to types.CanonicalDimension and
// tagged with the producing tier. Padded vectors carry Padded=true and their
// native dimension, so downstream consumers can tell them apart.
//
// The cache is consulted per tier before any call, including for tiers that
// are currently UNAVAILABLE.
package embedder
