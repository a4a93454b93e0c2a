// Package memory implements a long-term memory store whose retention
// mimics human forgetting.
//
// Every stored memory carries an importance score and access metadata.
// Retrieval ranks candidates by vector similarity weighted by an
// Ebbinghaus-style retention term, so results favor memories that are
// both relevant and not yet forgotten. Retrieval reinforces what it
// returns (importance boost, access timestamp refresh); a background
// scheduler periodically decays importance and deletes records that
// fall below the forgetting threshold.
//
// Architecture:
//   - Record: one durable memory (content, vector, metadata, retention state)
//   - Engine: Store / Retrieve / Forget / Stats against a VectorIndex
//   - Scheduler: recurring decay and maintenance sweeps
//   - Guard: per-record mutual exclusion shared by requests and sweeps
//
// Collaborators are narrow interfaces:
//   - Embedder: text -> fixed-dimension vector (openai, onnx, mock)
//   - VectorIndex: persistence + k-NN similarity (chromem-go backed)
//
// The VectorIndex is the single source of truth: the Engine caches no
// record state between calls, so concurrent retrieval always observes
// the latest committed importance and timestamps.
package memory
