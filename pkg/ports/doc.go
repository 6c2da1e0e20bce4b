/*
Package ports defines the driven ports (interfaces) of the workflow engine.

These interfaces decouple the graph nodes from concrete collaborators, so the
same workflow runs against Prometheus or a fixture, Redis or memory, OpenAI or a
scripted model.

# Key Interfaces

  - MetricsSource: Evaluates a metrics query (e.g., PromQL against Prometheus).
  - KnowledgeStore: Searches and extends the remediation knowledge base.
  - Model: Produces the next assistant message, optionally with tool calls or a structured document.
  - Remediator: Applies a corrective action to a workload.
  - RunStore: Persists finished run records.
  - DistributedLocker: Serializes conflicting work across replicas.
*/
package ports
