package reactive

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Snapshot maps cell keys to their JSON encoding. It is embedded in server
// rendered pages and restored into the client store before hydration.
type Snapshot map[string]json.RawMessage

// Keys returns the snapshot keys in ascending order.
func (s Snapshot) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Marshal encodes the snapshot. Keys are written in sorted order, so equal
// snapshots encode to identical bytes.
func (s Snapshot) Marshal() ([]byte, error) {
	if s == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]json.RawMessage(s))
}

// ParseSnapshot decodes a snapshot produced by Marshal.
func ParseSnapshot(data []byte) (Snapshot, error) {
	s := make(Snapshot)
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("reactive: parse snapshot: %w", err)
	}
	return s, nil
}

// Keys returns the keys of every live keyed cell in ascending order.
func (st *Store) Keys() []string {
	st.mu.Lock()
	defer st.mu.Unlock()
	keys := make([]string, 0, len(st.keyed))
	for k := range st.keyed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot encodes the named keyed cells. With no keys it encodes all of them.
func (st *Store) Snapshot(keys ...string) (Snapshot, error) {
	if len(keys) == 0 {
		keys = st.Keys()
	}
	snap := make(Snapshot, len(keys))
	for _, k := range keys {
		raw, err := st.Encode(k)
		if err != nil {
			return nil, err
		}
		snap[k] = raw
	}
	return snap, nil
}

// Encode returns the JSON encoding of one keyed cell.
func (st *Store) Encode(key string) ([]byte, error) {
	st.mu.Lock()
	c, ok := st.keyed[key]
	st.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("reactive: unknown key %q", key)
	}
	raw, err := c.encode()
	if err != nil {
		return nil, fmt.Errorf("reactive: encode %q: %w", key, err)
	}
	return raw, nil
}

// Watch is like Encode but records the read in the running computation,
// which then re-runs whenever the cell changes.
func (st *Store) Watch(key string) ([]byte, error) {
	st.mu.Lock()
	c, ok := st.keyed[key]
	st.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("reactive: unknown key %q", key)
	}
	st.track(c.source())
	return c.encode()
}

// Restore loads a snapshot. Values for live cells are written immediately
// in one batch; the rest are staged for the New call that creates the cell.
func (st *Store) Restore(s Snapshot) error {
	var firstErr error
	st.Batch(func() {
		for _, k := range s.Keys() {
			if err := st.Apply(k, s[k]); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	})
	return firstErr
}

// Apply writes the encoded value raw into the cell registered under key.
// If no such cell exists yet the value is staged for it.
func (st *Store) Apply(key string, raw []byte) error {
	st.checkWritable("Apply", key)

	st.mu.Lock()
	c, ok := st.keyed[key]
	if !ok {
		st.staged[key] = append(json.RawMessage(nil), raw...)
		st.mu.Unlock()
		return nil
	}
	st.mu.Unlock()

	if err := c.decode(raw); err != nil {
		return fmt.Errorf("reactive: apply %q: %w", key, err)
	}
	return nil
}
