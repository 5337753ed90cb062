package tgi

import "tgiworker/internal/params"

// Operation names a backend call.
type Operation string

const (
	OpGenerate       Operation = "generate"
	OpGenerateStream Operation = "generate_stream"
)

// Capabilities maps each operation to the parameter names it accepts.
// It is fixed for the lifetime of a client.
type Capabilities map[Operation]params.NameSet

// Accepted returns the accepted names for op, or an empty set.
func (c Capabilities) Accepted(op Operation) params.NameSet {
	if s, ok := c[op]; ok {
		return s
	}
	return params.NameSet{}
}

// All returns the union of every operation's accepted names.
func (c Capabilities) All() params.NameSet {
	sets := make([]params.NameSet, 0, len(c))
	for _, s := range c {
		sets = append(sets, s)
	}
	return params.Union(sets...)
}

// streamParams are accepted by both generate and generate_stream.
var streamParams = []string{
	"do_sample",
	"max_new_tokens",
	"repetition_penalty",
	"frequency_penalty",
	"return_full_text",
	"seed",
	"stop_sequences",
	"temperature",
	"top_k",
	"top_p",
	"truncate",
	"typical_p",
	"watermark",
	"top_n_tokens",
	"grammar",
}

// DefaultCapabilities returns the parameter table of a TGI server.
// generate additionally supports best_of and decoder_input_details.
func DefaultCapabilities() Capabilities {
	gen := append(append([]string(nil), streamParams...), "best_of", "decoder_input_details")
	return Capabilities{
		OpGenerate:       params.NewNameSet(gen...),
		OpGenerateStream: params.NewNameSet(streamParams...),
	}
}
