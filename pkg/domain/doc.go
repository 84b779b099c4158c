/*
Package domain contains the core models of the llmfsm engine.

It defines the entities of an LLM-driven state machine and is kept free of I/O,
persistence and model SDKs.

# Key Entities

  - StateDefinition: a named state with a prompt, a reply schema, outgoing edges and an optional handler.
  - Edge: a declared transition whose condition text is shown to the model, never evaluated.
  - Outcome: what a handler returns, either a Reply or an ImmediateOverride.
  - ContextStore: the per-conversation key/value memory handlers read and write.
  - TurnRecord: the immutable audit entry appended for every committed turn.
  - Snapshot: the serializable form of a machine, used by persistence adapters.
*/
package domain
