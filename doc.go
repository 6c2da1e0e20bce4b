/*
Package evolve runs agent workflows expressed as directed graphs over a shared,
reducer-merged state.

A workflow is a set of nodes (asynchronous handlers returning partial updates)
connected by unconditional or conditional edges. Builders validate the topology
once; the compiled graph is immutable and can drive any number of concurrent runs.

# Concept

Every run starts at the graph's entry node. After a node returns, its update is
merged through the field reducers (messages concatenate, the call counter sums,
other fields use the reducer they were declared with) and the next node is chosen
from the merged state. Each step emits a delta; the run ends with exactly one
terminal event: completed, failed or cancelled.

# Usage

	g, err := workflow.NewAssistant(deps, workflow.AssistantConfig{Tools: workflow.Calculator()})
	if err != nil {
		log.Fatal(err)
	}

	eng, err := evolve.New(g, evolve.WithRunStore(memory.NewStore()))
	if err != nil {
		log.Fatal(err)
	}

	run, err := eng.Invoke(ctx, "What is 3 + 4?")
	if err != nil {
		log.Fatal(err)
	}
	for ev := range run.Events() {
		fmt.Println(ev.Type)
	}

Consumers must drain Events (or call Run.Wait); a run does not advance while its
stream is full.
*/
package evolve
