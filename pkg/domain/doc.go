/*
Package domain contains the core models of the itinera conversation engine.

It defines the message vocabulary exchanged between the user, the model and the
tools, the durable checkpoint records, the stream events delivered to callers, and
the error taxonomy. This package is kept pure and free of I/O, following
Hexagonal Architecture principles.

# Key Entities

  - Message: a user, assistant or tool-result entry in a thread (discriminated by Role).
  - ToolCall: a structured request from the model to run a named tool.
  - ConversationState: the folded, ordered message history of one thread.
  - Checkpoint / Record: the immutable durable output of an append.
  - Event: one item of a streamed turn (message, done or error).
*/
package domain
