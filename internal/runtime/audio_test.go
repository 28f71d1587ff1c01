package runtime

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(seconds float64, amplitude float32) []float32 {
	n := int(seconds * SampleRate)
	out := make([]float32, n)
	for i := range out {
		out[i] = amplitude * float32(math.Sin(2*math.Pi*440*float64(i)/SampleRate))
	}
	return out
}

func silence(seconds float64) []float32 {
	return make([]float32, int(seconds*SampleRate))
}

func TestActivityWindower_EmitsAfterTrailingSilence(t *testing.T) {
	t.Parallel()
	w := NewActivityWindower()

	require.Empty(t, w.Push(sine(1.0, 0.5)))
	windows := w.Push(silence(0.6))
	require.Len(t, windows, 1)
	// The window holds the utterance plus the closing silence.
	assert.GreaterOrEqual(t, len(windows[0]), SampleRate)
}

func TestActivityWindower_DropsLeadingSilenceAndBlips(t *testing.T) {
	t.Parallel()
	w := NewActivityWindower()

	assert.Empty(t, w.Push(silence(2.0)))

	// A 40 ms blip is below the minimum speech length.
	assert.Empty(t, w.Push(sine(0.04, 0.5)))
	assert.Empty(t, w.Push(silence(0.6)))
}

func TestActivityWindower_ChunkedFeedMatchesSingleFeed(t *testing.T) {
	t.Parallel()
	w := NewActivityWindower()

	// Feed 4 s of speech in 100 ms chunks, then silence.
	speech := sine(4.0, 0.5)
	chunk := SampleRate / 10
	var windows [][]float32
	for i := 0; i+chunk <= len(speech); i += chunk {
		windows = append(windows, w.Push(speech[i:i+chunk])...)
	}
	windows = append(windows, w.Push(silence(0.6))...)
	require.NotEmpty(t, windows)

	single := NewActivityWindower()
	want := single.Push(speech)
	want = append(want, single.Push(silence(0.6))...)
	assert.Equal(t, want, windows)
}

func TestActivityWindower_Flush(t *testing.T) {
	t.Parallel()
	w := NewActivityWindower()
	w.Push(sine(0.5, 0.5))
	window := w.Flush()
	require.NotNil(t, window)
	assert.Nil(t, w.Flush())
}
