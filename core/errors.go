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


package core

import "errors"

// Error taxonomy shared across the engine. Callers classify failures with
// errors.Is against these sentinels.
var (
	// ErrValidation indicates bad input or an illegal state transition.
	// Not retryable.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates a missing entity. Fatal for the running task.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a duplicate create. Fatal for the running task.
	ErrConflict = errors.New("conflict")

	// ErrInfrastructure indicates an unreachable or failing store.
	// Retryable via the task RETRY budget.
	ErrInfrastructure = errors.New("infrastructure failure")
)

// IsRetryable reports whether an error qualifies for a task RETRY attempt.
// Only infrastructure failures are retryable; validation, not-found and
// conflict errors are deterministic and would fail again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrInfrastructure)
}
