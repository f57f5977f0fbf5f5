// Package ingestion provides pipeline orchestration for document
// synchronization.
//
// The Pipeline type manages the full sync workflow:
//   - Fetching raw documents from a source connector
//   - Extracting plain text
//   - Reconciling against stored state (create, update, or skip)
//   - Generating chunk embeddings concurrently with bounded retries
//   - Writing the relational store first, then the vector index
//
// Documents are processed independently; one document's failure is recorded
// in the run report and the run continues. Cleanup removes documents from
// both stores, capturing vector IDs before the relational cascade.
package ingestion
