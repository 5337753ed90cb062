package worker

// Keys of a job input the worker understands. Anything else is ignored.
const (
	keyPrompt         = "prompt"
	keyStream         = "stream"
	keyGenerateParams = "generate_params"
)

type jobInput struct {
	Prompt         string
	Stream         bool
	GenerateParams map[string]any
}

// parseInput extracts the fields the lifecycle consumes. The job's map is
// only read: stream and generate_params are consumed here and never reach the
// backend.
func parseInput(in map[string]any) (jobInput, error) {
	var out jobInput
	raw, ok := in[keyPrompt]
	if !ok || raw == nil {
		return out, &ValidationError{Field: keyPrompt, Reason: "is required"}
	}
	prompt, ok := raw.(string)
	if !ok {
		return out, &ValidationError{Field: keyPrompt, Reason: "must be a string"}
	}
	out.Prompt = prompt

	if raw, ok := in[keyStream]; ok && raw != nil {
		b, ok := raw.(bool)
		if !ok {
			return out, &ValidationError{Field: keyStream, Reason: "must be a boolean"}
		}
		out.Stream = b
	}

	if raw, ok := in[keyGenerateParams]; ok && raw != nil {
		m, ok := raw.(map[string]any)
		if !ok {
			return out, &ValidationError{Field: keyGenerateParams, Reason: "must be an object"}
		}
		out.GenerateParams = m
	}
	return out, nil
}
