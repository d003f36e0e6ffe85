package memory

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EncodeBuckets renders every bucket of s as JSON, keyed by bucket name.
func EncodeBuckets(s Snapshot) (map[string][]byte, error) {
	out := make(map[string][]byte, len(Buckets))
	for _, bucket := range Buckets {
		section, _ := s.Section(bucket)
		data, err := json.Marshal(section)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", bucket, err)
		}
		out[bucket] = data
	}
	return out, nil
}

// DecodeBuckets rebuilds a snapshot from stored rows. Unknown buckets are
// ignored so older binaries can read newer files. found is false when no
// known bucket was present.
func DecodeBuckets(rows map[string][]byte) (snapshot Snapshot, found bool, err error) {
	for bucket, payload := range rows {
		target, ok := snapshot.Target(bucket)
		if !ok || len(payload) == 0 {
			continue
		}
		if err := json.Unmarshal(payload, target); err != nil {
			return Snapshot{}, false, fmt.Errorf("decode %s: %w", bucket, err)
		}
		found = true
	}
	return snapshot, found, nil
}

// BucketTracker remembers what a durable store last wrote so each commit
// rewrites only the buckets it changed.
type BucketTracker struct {
	written map[string][]byte
}

// Changed returns the buckets of encoded that differ from the last
// acknowledged write, in Buckets order.
func (t *BucketTracker) Changed(encoded map[string][]byte) []string {
	var out []string
	for _, bucket := range Buckets {
		if prev, ok := t.written[bucket]; ok && bytes.Equal(prev, encoded[bucket]) {
			continue
		}
		out = append(out, bucket)
	}
	return out
}

// Ack records buckets as durably written.
func (t *BucketTracker) Ack(encoded map[string][]byte, buckets []string) {
	if t.written == nil {
		t.written = make(map[string][]byte, len(Buckets))
	}
	for _, bucket := range buckets {
		t.written[bucket] = encoded[bucket]
	}
}

// Reset forgets every acknowledged write.
func (t *BucketTracker) Reset() { t.written = nil }
