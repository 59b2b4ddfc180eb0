// Package lumen is a small framework for tool-using ReAct agents and
// retrieval-augmented question answering in Go.
//
// It provides interface-driven building blocks: LLM providers, embedding
// providers, a text-protocol ReAct agent with a tool registry, windowed
// conversation memory, and a vector index used by the rag pipeline.
//
// # Quick Start
//
// Run an agent with a calculator tool:
//
//	provider := lumen.WithRetry(openaicompat.NewProvider(apiKey, "deepseek-chat", baseURL))
//	registry := lumen.NewToolRegistry()
//	registry.Register(calculator.New())
//
//	agent := lumen.NewReActAgent(provider, registry,
//		lumen.WithMemory(lumen.NewWindowMemory(3)),
//	)
//	result, err := agent.Run(ctx, "What is (12 + 5) * 3?")
//
// # Core Interfaces
//
// The root package defines the contracts that all components implement:
//
//   - [Provider]: chat completion backend
//   - [EmbeddingProvider]: text-to-vector embedding
//   - [Tool]: named capability the agent invokes with a text input
//   - [Memory]: conversation history fed back into each run
//   - [TranscriptStore]: durable transcript behind a memory
//   - [VectorIndex]: similarity search over embedded chunks
//
// # Included Implementations
//
// Providers: provider/openaicompat (OpenAI-compatible APIs), provider/anthropic,
// provider/gemini, selected by name through provider/resolve.
// Storage: store/sqlite and store/postgres transcripts, vector (in-memory and
// chromem), store/postgres pgvector index.
// Tools: tools/calculator, tools/weather.
//
// See cmd/lumen for the command-line application.
package lumen
