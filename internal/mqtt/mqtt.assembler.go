// FilePath: internal/mqtt/mqtt.assembler.go
package mqtt

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// assembly is the in-flight reception state of one image transmission. It is
// only ever touched while holding the owning assembler's lock; handlers and
// timer callbacks work with snapshots instead.
type assembly struct {
	deviceID    string
	imageName   string
	imageID     string
	totalChunks int
	chunks      map[int][]byte
	askCount    int
	startedAt   time.Time
	timer       *time.Timer
}

// snapshot is an immutable copy of an assembly's state, safe to read outside
// the assembler lock. data is populated only once the assembly is complete.
type snapshot struct {
	deviceID    string
	imageName   string
	imageID     string
	totalChunks int
	askCount    int
	complete    bool
	missing     []int
	data        []byte
}

func (a *assembly) completeLocked() bool {
	return a.totalChunks > 0 && len(a.chunks) == a.totalChunks
}

// missingLocked returns the chunk ids not yet received, ascending.
func (a *assembly) missingLocked() []int {
	out := make([]int, 0, a.totalChunks-len(a.chunks))
	for i := 0; i < a.totalChunks; i++ {
		if _, ok := a.chunks[i]; !ok {
			out = append(out, i)
		}
	}
	return out
}

// bytesLocked concatenates the received chunks in chunk-id order.
func (a *assembly) bytesLocked() []byte {
	ids := make([]int, 0, len(a.chunks))
	for id := range a.chunks {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var buf []byte
	for _, id := range ids {
		buf = append(buf, a.chunks[id]...)
	}
	return buf
}

func (a *assembly) snapshotLocked() *snapshot {
	s := &snapshot{
		deviceID:    a.deviceID,
		imageName:   a.imageName,
		imageID:     a.imageID,
		totalChunks: a.totalChunks,
		askCount:    a.askCount,
		complete:    a.completeLocked(),
		missing:     a.missingLocked(),
	}
	if s.complete {
		s.data = a.bytesLocked()
	}
	return s
}

// expireAction is the assembler's verdict when a grace window runs out.
type expireAction int

const (
	expireNone expireAction = iota
	expireAsk
	expireGiveUp
)

// assembler tracks all in-flight transmissions, keyed by the image's stable
// (device, image name) identity so resent chunks land on the same assembly.
type assembler struct {
	mu       sync.Mutex
	inflight map[string]*assembly
}

func newAssembler() *assembler {
	return &assembler{inflight: make(map[string]*assembly)}
}

func assemblyKey(deviceID, imageName string) string {
	return deviceID + "|" + imageName
}

// begin opens (or reuses) the assembly for a transmission. A retransmission
// of a known image keeps already-received chunks.
func (m *assembler) begin(deviceID, imageName, imageID string, totalChunks int) *snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := assemblyKey(deviceID, imageName)
	if a, ok := m.inflight[key]; ok {
		a.totalChunks = totalChunks
		a.imageID = imageID
		return a.snapshotLocked()
	}
	a := &assembly{
		deviceID:    deviceID,
		imageName:   imageName,
		imageID:     imageID,
		totalChunks: totalChunks,
		chunks:      make(map[int][]byte),
		startedAt:   time.Now(),
	}
	m.inflight[key] = a
	return a.snapshotLocked()
}

// addChunk stores one chunk and reports the resulting state, or nil when no
// metadata for the image was seen. A chunk that completes the assembly also
// removes it and stops its grace timer, so exactly one caller observes
// complete=true with the assembled bytes.
func (m *assembler) addChunk(deviceID, imageName string, chunkID int, data []byte) *snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := assemblyKey(deviceID, imageName)
	a, ok := m.inflight[key]
	if !ok {
		return nil
	}
	a.chunks[chunkID] = data

	s := a.snapshotLocked()
	if s.complete {
		if a.timer != nil {
			a.timer.Stop()
		}
		delete(m.inflight, key)
	}
	return s
}

func (m *assembler) get(deviceID, imageName string) *snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.inflight[assemblyKey(deviceID, imageName)]
	if !ok {
		return nil
	}
	return a.snapshotLocked()
}

// arm starts (or restarts) the assembly's grace timer.
func (m *assembler) arm(deviceID, imageName string, grace time.Duration, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.inflight[assemblyKey(deviceID, imageName)]
	if !ok {
		return
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(grace, fn)
}

// expire resolves a grace-window expiry: spend one ask if the budget allows,
// otherwise remove the assembly and report give-up. The assembly may have
// completed or been removed since the timer was armed.
func (m *assembler) expire(deviceID, imageName string, maxAsks int) (*snapshot, expireAction) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := assemblyKey(deviceID, imageName)
	a, ok := m.inflight[key]
	if !ok || a.completeLocked() {
		return nil, expireNone
	}

	if a.askCount >= maxAsks {
		if a.timer != nil {
			a.timer.Stop()
		}
		delete(m.inflight, key)
		return a.snapshotLocked(), expireGiveUp
	}

	a.askCount++
	return a.snapshotLocked(), expireAsk
}

// finish removes the assembly and stops its grace timer.
func (m *assembler) finish(deviceID, imageName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := assemblyKey(deviceID, imageName)
	if a, ok := m.inflight[key]; ok && a.timer != nil {
		a.timer.Stop()
	}
	delete(m.inflight, key)
}

// decodeChunkPayload accepts both encodings the firmware generations use: a
// base64 string or a raw JSON array of byte values.
func decodeChunkPayload(raw json.RawMessage) ([]byte, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return base64.StdEncoding.DecodeString(s)
	}

	var ints []int
	if err := json.Unmarshal(raw, &ints); err != nil {
		return nil, fmt.Errorf("chunk payload is neither base64 nor byte array")
	}
	buf := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("chunk payload byte %d out of range: %d", i, v)
		}
		buf[i] = byte(v)
	}
	return buf, nil
}
