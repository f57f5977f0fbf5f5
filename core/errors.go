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

// Failure taxonomy for the sync process. Adapters wrap their underlying
// errors with one of these sentinels so the orchestrator can classify
// per-document failures in reports.
var (
	// ErrSourceUnavailable indicates the document source could not be
	// reached or refused authentication.
	ErrSourceUnavailable = errors.New("document source unavailable")

	// ErrUnsupportedFormat indicates raw document bytes could not be parsed
	// into text.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrEmbeddingService indicates the embedding service failed after all
	// retry attempts.
	ErrEmbeddingService = errors.New("embedding service error")

	// ErrStoreWrite indicates a relational or vector store write failed.
	ErrStoreWrite = errors.New("store write failed")

	// ErrReconciliationInconsistency indicates a stored chunk set is
	// structurally invalid (non-contiguous or duplicate indices). This is
	// fatal for the document and is never silently repaired.
	ErrReconciliationInconsistency = errors.New("stored chunk set is inconsistent")

	// ErrEmptyDocument indicates extraction produced no text.
	ErrEmptyDocument = errors.New("document has no text content")
)
