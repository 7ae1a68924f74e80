// Package model defines the provider agnostic chat completion contract used by
// the conversation engine, the ticket analyzer and the commit reviewer.
//
// Core goals:
//   - One blocking Complete call per turn, no retries
//   - Normalize tool definitions and tool calls across vendors
//   - Map every failure onto the core error kinds (transport vs provider api)
//   - Facilitate lightweight scripting for tests (ScriptedClient)
//
// Providers (OpenAI compatible endpoints, Anthropic) implement ChatClient in
// sub packages so higher layers remain decoupled from vendor SDKs.
package model
