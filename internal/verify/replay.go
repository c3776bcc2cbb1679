package verify

import (
	"sort"

	"github.com/sfc-gh-svemuri/feedcheck/internal/kv"
)

// Replay applies log to snap in order and returns the resulting entry
// set, sorted by key. Pure: neither input is modified and the output owns
// all of its data. The result's version is left unset; callers compare
// against an externally known target version.
//
// Batches must already be in increasing version order and mutations in
// commit order; replay applies them exactly as given.
func Replay(snap kv.Snapshot, log kv.MutationLog) kv.Snapshot {
	state := make(map[string][]byte, len(snap.Entries))
	for _, e := range snap.Entries {
		state[string(e.Key)] = e.Value
	}

	for _, batch := range log {
		for _, m := range batch.Mutations {
			switch m.Type {
			case kv.SetValue:
				state[string(m.Key)] = m.Value
			case kv.ClearRange:
				begin, end := string(m.Key), string(m.End)
				for k := range state {
					// Half-open: end itself survives.
					if k >= begin && k < end {
						delete(state, k)
					}
				}
			}
		}
	}

	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]kv.KeyValue, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, kv.KeyValue{
			Key:   append(kv.Key(nil), k...),
			Value: append([]byte(nil), state[k]...),
		})
	}
	return kv.Snapshot{Entries: entries}
}
