// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package storage defines the persistence boundary for the knowledge graph.
//
// The pipeline only ever sees a TripleSink: a batch of triples goes in, an
// Ack comes out. Backends live in subpackages:
//
//   - storage/badger: embedded key/value store, the default
//   - storage/sqlite: single-file SQL store
//
// # Constructor Return Type Pattern
//
// Public constructors return interfaces:
//
//	store, err := badger.NewTripleStore(backend)  // returns storage.TripleStore
//
// Internal helpers inside a backend package may return concrete types.
//
// # Write Semantics
//
// A Write is atomic for the whole batch. Before the new triples are stored,
// every triple previously written for any subject in the batch is removed,
// so replaying a run replaces the graph for those subjects instead of
// accumulating stale statements. Subjects absent from the batch are left
// alone.
//
// # Thread Safety
//
// All implementations must be safe for concurrent use.
package storage
