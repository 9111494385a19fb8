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


// Package storage provides the storage abstraction layer for docsync.
//
// The engine writes to two heterogeneous stores with very different
// guarantees:
//
//   - DocumentStore / TaskStore: relational metadata (collections, documents,
//     chunks, sync tasks) with ACID transactions, implemented by the sqlite
//     subpackage. Mutations made by the ingestion pipeline go through the txn
//     package so that rollback data is captured for every write.
//   - VectorStore: the embedded vector index, implemented by the badger
//     subpackage. Writes here are best-effort and never covered by relational
//     transactions; a window of inconsistency between the two stores is part
//     of the contract.
//
// # Thread Safety
//
// All store implementations must be thread-safe and support concurrent
// access from multiple goroutines.
//
// # Context Support
//
// All store methods accept context.Context for cancellation and timeout
// support.
package storage
