// Package model defines the provider-agnostic text generation abstraction
// that turns an assembled recommendation summary into free text.
//
// Core goals:
//   - Unify streaming + non-streaming generation behind a single interface
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (OpenAI and OpenAI-compatible servers such as Ollama, Anthropic)
// implement Generator in sub-packages so higher layers stay decoupled from
// vendor SDKs.
package model
