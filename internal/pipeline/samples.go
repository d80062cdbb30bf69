// internal/pipeline/samples.go
package pipeline

import (
	"math/rand/v2"
	"sync"
)

type Sample struct {
	Text     string
	Category string
}

var DefaultSamples = []Sample{
	{"What is the best way to read a file in Python?", "programming"},
	{"How can overfitting be prevented in machine learning?", "ml"},
	{"What are some tips for effective code review?", "development"},
	{"Explain the design principles of RESTful APIs.", "api"},
	{"Which Git branching strategy do you recommend?", "git"},
}

// PromptPicker supplies prompt text for scheduled cycles.
type PromptPicker interface {
	Pick() Sample
}

type SamplePicker struct {
	mu      sync.Mutex
	samples []Sample
	rng     *rand.Rand
}

func NewSamplePicker(samples []Sample, rng *rand.Rand) *SamplePicker {
	if len(samples) == 0 {
		samples = DefaultSamples
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &SamplePicker{samples: samples, rng: rng}
}

func (p *SamplePicker) Pick() Sample {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.samples[p.rng.IntN(len(p.samples))]
}
