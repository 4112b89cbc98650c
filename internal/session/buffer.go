package session

import (
	"sync"
	"time"
)

// SpeakerBuffer accumulates raw audio fragments for a single speaker stream.
// Fragments are kept in arrival order and are never reordered. A buffer is
// safe for concurrent append and take.
type SpeakerBuffer struct {
	mu        sync.Mutex
	fragments [][]byte
	createdAt time.Time
}

func newSpeakerBuffer() *SpeakerBuffer {
	return &SpeakerBuffer{createdAt: time.Now()}
}

func (b *SpeakerBuffer) append(fragment []byte) {
	b.mu.Lock()
	b.fragments = append(b.fragments, fragment)
	b.mu.Unlock()
}

// take returns all accumulated fragments and resets the buffer. The returned
// slice is owned by the caller; fragments appended after take starts land in
// the reset buffer and are delivered by the next take.
func (b *SpeakerBuffer) take() [][]byte {
	b.mu.Lock()
	out := b.fragments
	b.fragments = nil
	b.mu.Unlock()
	return out
}

// Len returns the number of fragments currently buffered.
func (b *SpeakerBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.fragments)
}

// Recorder owns the per-speaker buffers for one recording session. Ingest is
// called from the voice receive loop at packet cadence (~20ms per speaking
// user), so the map lock is held only for key lookup and the per-buffer
// mutex serializes appends for a single speaker without serializing across
// speakers.
type Recorder struct {
	mu        sync.RWMutex
	buffers   map[uint32]*SpeakerBuffer
	startedAt time.Time
}

func NewRecorder() *Recorder {
	return &Recorder{
		buffers:   make(map[uint32]*SpeakerBuffer),
		startedAt: time.Now(),
	}
}

// StartedAt returns the session-scoped creation timestamp. It is combined
// with the speaker id and flush time to derive unique output filenames.
func (r *Recorder) StartedAt() time.Time {
	return r.startedAt
}

// Ingest appends a fragment to the speaker's buffer, creating the buffer on
// first use. Empty fragments are dropped.
func (r *Recorder) Ingest(speakerID uint32, fragment []byte) {
	if len(fragment) == 0 {
		return
	}

	r.mu.RLock()
	b, ok := r.buffers[speakerID]
	r.mu.RUnlock()

	if !ok {
		r.mu.Lock()
		b, ok = r.buffers[speakerID]
		if !ok {
			b = newSpeakerBuffer()
			r.buffers[speakerID] = b
		}
		r.mu.Unlock()
	}

	b.append(fragment)
}

// Flush atomically takes ownership of all buffered fragments and leaves every
// buffer empty. Speakers with no buffered audio are omitted. A fragment whose
// Ingest returned before Flush was called is guaranteed to appear in this
// snapshot or a later one, never both and never neither.
//
// Returns ErrNoAudio when nothing was buffered.
func (r *Recorder) Flush() (map[uint32][][]byte, error) {
	r.mu.RLock()
	buffers := make(map[uint32]*SpeakerBuffer, len(r.buffers))
	for id, b := range r.buffers {
		buffers[id] = b
	}
	r.mu.RUnlock()

	snapshot := make(map[uint32][][]byte, len(buffers))
	for id, b := range buffers {
		fragments := b.take()
		if len(fragments) == 0 {
			continue
		}
		snapshot[id] = fragments
	}

	if len(snapshot) == 0 {
		return nil, ErrNoAudio
	}
	return snapshot, nil
}
