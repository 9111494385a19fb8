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

// Package txn implements transactional execution over the relational store.
//
// Every mutation of collections, documents and chunks runs as a typed
// Operation inside a Context managed by the Coordinator. The Executor
// captures each operation's pre-image before applying it, which lets the
// RollbackEngine undo any prefix of a transaction by replaying inverse
// operations in reverse order. Savepoints mark positions in the operation
// list; nested transactions share the parent's connection and merge their
// operations upward on success.
//
// Store-level BEGIN/COMMIT/ROLLBACK and SAVEPOINT statements are used when
// available, but correctness never depends on them alone: the inverse
// replay always runs, and every inverse tolerates finding its work already
// done.
package txn
