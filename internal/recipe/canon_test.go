package recipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefinition_HashDeterministic(t *testing.T) {
	a := Definition{
		InputClipIDs:       []int64{10, 20, 30},
		TitleText:          "Test",
		TitleOffsetSeconds: 5,
		AudioBlendParams:   map[string]any{"volume": 0.8},
		TransformOverrides: map[string]any{"crop": map[string]any{"top": float64(10)}},
		PipelineVersion:    1,
	}
	b := a

	assert.Equal(t, a.Hash(), b.Hash())
}

func TestDefinition_HashChangesWithClipID(t *testing.T) {
	a := Definition{
		InputClipIDs:       []int64{10, 20, 30},
		TitleText:          "Test",
		TitleOffsetSeconds: 5,
		AudioBlendParams:   map[string]any{"volume": 0.8},
		TransformOverrides: map[string]any{"crop": map[string]any{"top": float64(10)}},
		PipelineVersion:    1,
	}
	b := a
	b.InputClipIDs = []int64{10, 20, 40}

	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestDefinition_HashIgnoresFieldOrderInSource(t *testing.T) {
	a := Definition{InputClipIDs: []int64{1}, TitleText: "x", PipelineVersion: 2}
	b := Definition{PipelineVersion: 2, TitleText: "x", InputClipIDs: []int64{1}}

	assert.Equal(t, a.Hash(), b.Hash())
}
