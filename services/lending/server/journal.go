package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"lendcore/core/events"
	"lendcore/core/types"
)

const defaultJournalSize = 1024

// Journal keeps the most recent committed engine events and logs each one.
// It implements events.Emitter.
type Journal struct {
	mu     sync.Mutex
	logger *slog.Logger
	size   int
	seq    uint64
	ring   []journalEntry
}

type journalEntry struct {
	Seq uint64 `json:"seq"`
	*types.Event
}

func NewJournal(size int, logger *slog.Logger) *Journal {
	if size <= 0 {
		size = defaultJournalSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{logger: logger, size: size}
}

// Emit implements events.Emitter.
func (j *Journal) Emit(ev events.Event) {
	if j == nil || ev == nil {
		return
	}
	flat := &types.Event{Type: ev.EventType(), Attributes: map[string]string{}}
	if typed, ok := ev.(events.Typed); ok {
		if rendered := typed.Event(); rendered != nil {
			flat = rendered
		}
	}
	j.mu.Lock()
	j.seq++
	j.ring = append(j.ring, journalEntry{Seq: j.seq, Event: flat})
	if len(j.ring) > j.size {
		j.ring = j.ring[len(j.ring)-j.size:]
	}
	j.mu.Unlock()

	attrs := make([]any, 0, 2*len(flat.Attributes)+2)
	attrs = append(attrs, "type", flat.Type)
	for _, k := range flat.Keys() {
		attrs = append(attrs, k, flat.Attributes[k])
	}
	j.logger.Info("lending event", attrs...)
}

// Since returns the retained events with a sequence number above seq.
func (j *Journal) Since(seq uint64) []journalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]journalEntry, 0, len(j.ring))
	for _, e := range j.ring {
		if e.Seq > seq {
			out = append(out, e)
		}
	}
	return out
}

func (j *Journal) handler(w http.ResponseWriter, r *http.Request) {
	var since uint64
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err)
			return
		}
		since = parsed
	}
	writeJSON(w, http.StatusOK, j.Since(since))
}
