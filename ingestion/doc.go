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


// Package ingestion implements the document sync pipeline as a persisted
// state machine.
//
// Each submitted document gets a SyncTask that advances NEW -> SPLIT_OK ->
// VECTORIZED -> SYNCED through three stages: split and persist chunks,
// embed and upsert vectors, mark the document synced. Any stage failure
// moves the task to FAILED; a bounded RETRY budget moves it to RETRYING,
// from which execution resumes at the last completed stage rather than
// starting over.
//
// Chunk persistence and the final metadata write run through the txn
// package, so they roll back cleanly on failure. Embedding and vector
// upserts run outside any relational transaction, and vector deletes
// triggered by document or collection removal go through the Outbox,
// which retries them independently of the relational result.
package ingestion
