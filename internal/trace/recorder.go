// Package trace records improving search snapshots for later playback.
package trace

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"

	"cvrpsolver/internal/opt"
)

// minGain is the cost decrease a snapshot needs over the previous frame.
const minGain = 1e-6

// Frame is one recorded snapshot.
type Frame struct {
	Seq int `json:"seq"`
	opt.Event
}

// Recorder is an opt.Observer that keeps the initial snapshot and every later
// snapshot whose cost improves on the last frame.
type Recorder struct {
	mu     sync.Mutex
	frames []Frame
	limit  int
}

// NewRecorder keeps at most limit frames; limit <= 0 keeps all of them. With a
// limit of 1 only the latest frame is kept, otherwise the first frame survives.
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

func (r *Recorder) OnEvent(e opt.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	force := e.Kind == opt.EventInit
	if !force && len(r.frames) > 0 && e.Cost >= r.frames[len(r.frames)-1].Cost-minGain {
		return
	}
	switch {
	case r.limit == 1 && len(r.frames) > 0:
		// only the latest frame fits
		r.frames = r.frames[:0]
	case r.limit > 1 && len(r.frames) >= r.limit:
		// keep the first frame, drop the oldest improvement
		r.frames = append(r.frames[:1], r.frames[2:]...)
	}
	r.frames = append(r.frames, Frame{Seq: len(r.frames), Event: e})
	for i := range r.frames {
		r.frames[i].Seq = i
	}
}

// Frames returns a copy of the recorded frames.
func (r *Recorder) Frames() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Frame(nil), r.frames...)
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

// WriteJSONL writes one JSON frame per line.
func (r *Recorder) WriteJSONL(w io.Writer) error {
	return writeFrames(w, r.Frames())
}

// WriteCompressed writes the JSONL stream through a zstd encoder.
func (r *Recorder) WriteCompressed(w io.Writer) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if err := writeFrames(enc, r.Frames()); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// Compressed is WriteCompressed into a byte slice.
func (r *Recorder) Compressed() ([]byte, error) {
	var buf bytes.Buffer
	if err := r.WriteCompressed(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeFrames(w io.Writer, frames []Frame) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, f := range frames {
		if err := enc.Encode(f); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadJSONL decodes frames written by WriteJSONL.
func ReadJSONL(r io.Reader) ([]Frame, error) {
	dec := json.NewDecoder(r)
	var out []Frame
	for {
		var f Frame
		err := dec.Decode(&f)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("trace: frame %d: %w", len(out), err)
		}
		out = append(out, f)
	}
}

// ReadCompressed decodes frames written by WriteCompressed.
func ReadCompressed(r io.Reader) ([]Frame, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return ReadJSONL(dec)
}
