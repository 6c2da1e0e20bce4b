/*
Package domain contains the core data model shared by the graph engine, its nodes and its hosts.

It is kept free of I/O and persistence so that every other package (graph, runtime,
tool, adapters) can depend on it without cycles.

# Key Entities

  - Message: One entry of the conversation (system, human, assistant or tool).
  - State: The run state. Messages are append-only and CallCount only grows.
  - Update: The partial state a node returns. It is merged into State by the field reducers.
  - Key: A typed accessor for an additional state field, used for explicit node inputs and outputs.
  - StateDelta: What changed after one node merged, streamed to observers.
  - Event: The stream item of a Run (delta or one of the terminal outcomes).
*/
package domain
