package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpinnerDoneWritesStatusLine(t *testing.T) {
	var out bytes.Buffer
	sp := newSpinnerProgress(&out)

	sp.Update("Processing 3 alerts...")
	sp.Done("3 alerts processed")

	assert.Equal(t, "  ✓ 3 alerts processed\n", out.String())
}

func TestSpinnerStopWithoutStart(t *testing.T) {
	sp := newSpinnerProgress(&bytes.Buffer{})

	assert.NotPanics(t, sp.Stop)
}
