/*
Package runner consumes a run's event stream and writes it to a terminal or a
pipe.

# Key Components

  - Handler: receives every event of a run, in order.
  - TextHandler: human-readable transcript; assistant content goes through an optional ContentRenderer.
  - JSONHandler: one JSON object per event (NDJSON), for scripts and other processes.
  - SanitizeInput: the input policy applied to messages before a run starts.

# Usage

	run, err := eng.Invoke(ctx, msg)
	final, err := runner.Stream(ctx, run.Events(), runner.NewTextHandler(os.Stdout))
*/
package runner
