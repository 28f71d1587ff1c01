package runtime

import "math"

// SampleRate is the PCM rate the transcription pipeline expects.
const SampleRate = 16000

const (
	frameSamples      = SampleRate / 50 // 20 ms analysis frames
	defaultThreshold  = 0.01            // RMS below this is silence
	endWindowSamples  = SampleRate / 2  // 500 ms of silence closes a window
	maxWindowSamples  = SampleRate * 30 // hard cap per transcription call
	minSpeechSamples  = SampleRate / 10 // ignore blips shorter than 100 ms
)

// ActivityWindower rechunks a PCM stream by voice activity: it accumulates
// samples while speech is present and emits one window per utterance once
// 500 ms of trailing silence is observed.
type ActivityWindower struct {
	threshold float64
	pending   []float32 // samples not yet framed
	window    []float32 // current utterance, including inner silence
	speech    int       // speech samples in the current window
	silence   int       // consecutive trailing silence samples
}

func NewActivityWindower() *ActivityWindower {
	return &ActivityWindower{threshold: defaultThreshold}
}

// Push appends samples and returns zero or more completed speech windows.
func (w *ActivityWindower) Push(samples []float32) [][]float32 {
	w.pending = append(w.pending, samples...)
	var out [][]float32
	for len(w.pending) >= frameSamples {
		frame := w.pending[:frameSamples]
		w.pending = w.pending[frameSamples:]
		if done := w.pushFrame(frame); done != nil {
			out = append(out, done)
		}
	}
	return out
}

func (w *ActivityWindower) pushFrame(frame []float32) []float32 {
	active := rms(frame) >= w.threshold
	if active {
		w.window = append(w.window, frame...)
		w.speech += len(frame)
		w.silence = 0
		if len(w.window) >= maxWindowSamples {
			return w.take()
		}
		return nil
	}
	if w.speech == 0 {
		// Leading silence is dropped entirely.
		return nil
	}
	w.window = append(w.window, frame...)
	w.silence += len(frame)
	if w.silence >= endWindowSamples {
		return w.take()
	}
	return nil
}

// Flush returns the in-progress window, if it contains speech.
func (w *ActivityWindower) Flush() []float32 {
	if w.speech < minSpeechSamples {
		w.reset()
		return nil
	}
	return w.take()
}

func (w *ActivityWindower) take() []float32 {
	if w.speech < minSpeechSamples {
		w.reset()
		return nil
	}
	window := w.window
	w.reset()
	return window
}

func (w *ActivityWindower) reset() {
	w.window = nil
	w.speech = 0
	w.silence = 0
}

func rms(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(frame)))
}
