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


// Package ai defines the embedding abstraction used by the ingestion
// pipeline.
//
// The pipeline depends on the Embedder interface rather than a concrete
// provider, so the embedding backend can be swapped without touching the
// state machine or the stores. Two implementations ship with the module:
//
//   - ai/openai: production implementation over OpenAI-compatible APIs
//   - ai/mock: deterministic test double with no external dependencies
//
// Public constructors in ai/openai return the interface type; the mock
// constructor returns the concrete type so tests can inject behavior and
// assert call counts.
package ai
