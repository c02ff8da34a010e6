package research

import "scoutline.dev/orchestrator/internal/model"

// iteration is one fan-out entry's local variable bindings, merged over the
// shared context before each step executes.
type iteration struct {
	bindings map[string]any
}

// buildIterations expands a strategy's fan_out directive into the sequence
// of iterations the research executor runs, in order.
func buildIterations(fanOut model.FanOut, vars map[string]any, tasks []string) []iteration {
	switch fanOut.Mode {
	case model.FanOutTask:
		return taskIterations(tasks)
	case model.FanOutVar:
		return varIterations(fanOut, vars)
	default:
		return []iteration{{bindings: map[string]any{}}}
	}
}

func taskIterations(tasks []string) []iteration {
	out := make([]iteration, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, iteration{bindings: map[string]any{"topic": task}})
	}
	return out
}

func varIterations(fanOut model.FanOut, vars map[string]any) []iteration {
	mapTo := fanOut.MapTo
	if mapTo == "" {
		mapTo = "topic"
	}

	raw, ok := vars[fanOut.Var]
	if !ok {
		return nil
	}

	elements, ok := toSequence(raw)
	if !ok {
		return nil
	}

	if fanOut.Limit > 0 && len(elements) > fanOut.Limit {
		elements = elements[:fanOut.Limit]
	}

	out := make([]iteration, 0, len(elements))
	for _, el := range elements {
		out = append(out, iteration{bindings: map[string]any{mapTo: el}})
	}
	return out
}

func toSequence(val any) ([]any, bool) {
	switch v := val.(type) {
	case []any:
		return v, true
	case []string:
		seq := make([]any, len(v))
		for i, s := range v {
			seq[i] = s
		}
		return seq, true
	default:
		return nil, false
	}
}
