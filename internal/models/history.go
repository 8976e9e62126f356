package models

import (
	"encoding/json"
	"time"
)

// HistoryCapacity is the number of transactions kept in a profile's rolling history
const HistoryCapacity = 30

// HistoryEntry is one transaction in a rolling history
type HistoryEntry struct {
	TransactionID string    `json:"transactionId"`
	Amount        float64   `json:"amount"`
	Timestamp     time.Time `json:"timestamp"`
}

// RollingHistory is a fixed-capacity ring buffer of the most recent transactions.
// Appending to a full buffer overwrites the oldest entry.
type RollingHistory struct {
	buf   [HistoryCapacity]HistoryEntry
	start int
	size  int
}

// NewRollingHistory builds a history from entries in append order, keeping the newest
func NewRollingHistory(entries ...HistoryEntry) RollingHistory {
	var h RollingHistory
	for _, e := range entries {
		h.Append(e)
	}
	return h
}

// Append adds an entry, evicting the oldest when the buffer is full
func (h *RollingHistory) Append(e HistoryEntry) {
	if h.size < HistoryCapacity {
		h.buf[(h.start+h.size)%HistoryCapacity] = e
		h.size++
		return
	}
	h.buf[h.start] = e
	h.start = (h.start + 1) % HistoryCapacity
}

// Len returns the number of entries held
func (h *RollingHistory) Len() int {
	return h.size
}

// Entries returns the entries oldest first
func (h *RollingHistory) Entries() []HistoryEntry {
	out := make([]HistoryEntry, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.buf[(h.start+i)%HistoryCapacity]
	}
	return out
}

// Amounts returns the entry amounts oldest first
func (h *RollingHistory) Amounts() []float64 {
	out := make([]float64, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.buf[(h.start+i)%HistoryCapacity].Amount
	}
	return out
}

// Latest returns the most recently appended entry
func (h *RollingHistory) Latest() (HistoryEntry, bool) {
	if h.size == 0 {
		return HistoryEntry{}, false
	}
	return h.buf[(h.start+h.size-1)%HistoryCapacity], true
}

// Clone copies the buffer
func (h RollingHistory) Clone() RollingHistory {
	return h
}

func (h RollingHistory) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Entries())
}

func (h *RollingHistory) UnmarshalJSON(data []byte) error {
	var entries []HistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	*h = NewRollingHistory(entries...)
	return nil
}
