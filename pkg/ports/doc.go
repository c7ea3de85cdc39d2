/*
Package ports defines the driven ports (interfaces) of the itinera engine.

These interfaces decouple the turn loop from external implementations, allowing
the engine to work with various storage backends, model providers and tool sources.

# Key Interfaces

  - CheckpointStore: append-only durable history keyed by thread id.
  - Model: the language-model collaborator (history in, one assistant message out).
  - Toolbox: resolves and runs tool calls, never failing across the boundary.
  - DistributedLocker: optional cross-process locking of a thread.
*/
package ports
