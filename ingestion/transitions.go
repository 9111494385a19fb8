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


package ingestion

import "github.com/poiesic/docsync/core"

type transitionKey struct {
	from  core.TaskStatus
	event core.SyncEvent
}

// transitions is the closed transition table of the sync state machine.
// SYNCED is terminal; FAILED admits only RETRY; RETRYING admits every
// pipeline event, so a retried task can resume at whichever stage it
// last completed.
var transitions = map[transitionKey]core.TaskStatus{
	{core.TaskStatusNew, core.EventChunksSaved}:          core.TaskStatusSplitOK,
	{core.TaskStatusSplitOK, core.EventVectorsInserted}:  core.TaskStatusVectorized,
	{core.TaskStatusVectorized, core.EventMetaUpdated}:   core.TaskStatusSynced,
	{core.TaskStatusNew, core.EventError}:                core.TaskStatusFailed,
	{core.TaskStatusSplitOK, core.EventError}:            core.TaskStatusFailed,
	{core.TaskStatusVectorized, core.EventError}:         core.TaskStatusFailed,
	{core.TaskStatusRetrying, core.EventError}:           core.TaskStatusFailed,
	{core.TaskStatusFailed, core.EventRetry}:             core.TaskStatusRetrying,
	{core.TaskStatusRetrying, core.EventChunksSaved}:     core.TaskStatusSplitOK,
	{core.TaskStatusRetrying, core.EventVectorsInserted}: core.TaskStatusVectorized,
	{core.TaskStatusRetrying, core.EventMetaUpdated}:     core.TaskStatusSynced,
}

// NextStatus returns the status the event leads to from the given status,
// and whether the transition is permitted at all.
func NextStatus(from core.TaskStatus, event core.SyncEvent) (core.TaskStatus, bool) {
	to, ok := transitions[transitionKey{from, event}]
	return to, ok
}
