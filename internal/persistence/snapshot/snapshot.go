package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
	// RunID identifies the server process that wrote the snapshot.
	RunID string `json:"run_id,omitempty"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed               int64 `json:"seed"`
	TickRate           int   `json:"tick_rate_hz"`
	Workers            int   `json:"workers,omitempty"`
	SnapshotEveryTicks int   `json:"snapshot_every_ticks,omitempty"`

	// RandDraws is how many values the world's random stream has produced;
	// a resumed world reseeds and discards that many to continue the stream.
	RandDraws    uint64 `json:"rand_draws"`
	NextAgentNum uint64 `json:"next_agent_num"`

	Agents []AgentV1 `json:"agents"`
	Paths  []PathV1  `json:"paths"`
}

type WaypointV1 struct {
	ID  int        `json:"id"`
	Pos [3]float32 `json:"pos"`
}

type AgentV1 struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Profile   string       `json:"profile,omitempty"`
	FloorID   int          `json:"floor_id"`
	Pos       [3]float32   `json:"pos"`
	Tags      []string     `json:"tags,omitempty"`
	State     uint8        `json:"state"`
	HasTarget bool         `json:"has_target"`
	Target    TargetV1     `json:"target"`
	Path      []WaypointV1 `json:"path,omitempty"`
}

type TargetV1 struct {
	FloorID  int        `json:"floor_id"`
	Centroid [3]float32 `json:"centroid"`
}

// PathV1 is one path cache entry. Entries are stored in insertion order.
type PathV1 struct {
	FloorID   int          `json:"floor_id"`
	Start     [3]float32   `json:"start"`
	End       [3]float32   `json:"end"`
	Waypoints []WaypointV1 `json:"waypoints"`
	Tags      []string     `json:"tags,omitempty"`
	SolvedFor []string     `json:"solved_for,omitempty"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	if snap.Header.Version == 0 {
		snap.Header.Version = Version
	}
	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The header line duplicates what gob carries; it exists for cheap inspection.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}
