// Package core provides the foundational domain types and collaborator
// interfaces used by reviewmesh. It defines:
//
//   - Conversation messages and tool calls exchanged with chat providers
//   - Tickets, documents and commit records read from the host data store
//   - Read-only collaborator interfaces (ticket, document, commit and review stores)
//   - The error kinds surfaced to callers (config, validation, transport, ...)
//
// The package keeps implementation concerns (persistence, provider SDKs,
// orchestration) out of scope, exposing small interfaces so that any backend
// can be plugged in.
package core
