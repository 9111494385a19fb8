// Package openai implements the ai.Embedder interface over any
// OpenAI-compatible embedding API (OpenAI, Ollama, LocalAI, vLLM).
package openai
