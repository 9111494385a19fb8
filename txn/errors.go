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


package txn

import "errors"

var (
	// ErrTxNotFound indicates the transaction id is not in the live registry.
	ErrTxNotFound = errors.New("transaction not found")

	// ErrTxTerminal indicates the transaction already committed or rolled back.
	// Terminal states are immutable.
	ErrTxTerminal = errors.New("transaction is terminal")

	// ErrTxNotWritable indicates the transaction is not accepting operations.
	ErrTxNotWritable = errors.New("transaction not accepting operations")

	// ErrSavepointNotFound indicates the savepoint id is unknown to the
	// transaction.
	ErrSavepointNotFound = errors.New("savepoint not found")

	// ErrNotNested indicates a nested-transaction operation was attempted on
	// a root transaction.
	ErrNotNested = errors.New("transaction is not nested")
)
