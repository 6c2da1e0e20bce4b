// Package process exposes allow-listed local commands as tools.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/nvrdftd/evolve-ai-infra/pkg/tool"
)

// ArgPrefix prefixes the environment variables that carry tool arguments.
const ArgPrefix = "EVOLVE_ARG_"

var argKey = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Runner builds tool registrations for configured commands.
// Only configured commands can run; the model picks arguments, never the command line.
type Runner struct {
	baseDir   string
	maxOutput int
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// WithMaxOutput truncates stdout beyond n bytes (default 64 KiB).
func WithMaxOutput(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.maxOutput = n
		}
	}
}

// NewRunner creates a new Process Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{maxOutput: 64 << 10}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registrations converts configs into tools.
func (r *Runner) Registrations(configs []ProcessConfig) []tool.Registration {
	out := make([]tool.Registration, 0, len(configs))
	for _, cfg := range configs {
		out = append(out, tool.Registration{
			Name:        cfg.Name,
			Description: cfg.Description,
			Schema:      cfg.Schema,
			Invoke: func(ctx context.Context, args map[string]any) (any, error) {
				return r.execute(ctx, cfg, args)
			},
		})
	}
	return out
}

// execute runs the command. Arguments are passed as environment variables,
// never as flags, which rules out flag injection.
func (r *Runner) execute(ctx context.Context, cfg ProcessConfig, args map[string]any) (any, error) {
	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	cmd.Dir = r.baseDir

	env := cmd.Environ()
	for k, v := range cfg.Environment {
		env = append(env, k+"="+v)
	}
	for k, v := range args {
		if !argKey.MatchString(k) {
			return nil, fmt.Errorf("invalid argument name %q", k)
		}
		env = append(env, fmt.Sprintf("%s%s=%s", ArgPrefix, strings.ToUpper(k), envValue(v)))
	}
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("execution failed: %v. Stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	output := stdout.Bytes()
	if len(output) > r.maxOutput {
		output = append(output[:r.maxOutput:r.maxOutput], []byte("\n[truncated]")...)
	}
	trimmed := strings.TrimSpace(string(output))

	// JSON output is returned structured.
	if (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) {
		var structured any
		if err := json.Unmarshal([]byte(trimmed), &structured); err == nil {
			return structured, nil
		}
	}
	return trimmed, nil
}

func envValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64, bool, int, int64:
		return fmt.Sprintf("%v", v)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
