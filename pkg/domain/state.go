package domain

import "time"

// ConversationState is the ordered message history of one thread.
// Seq is the sequence number of the last durable record folded into it (0 if empty).
type ConversationState struct {
	ThreadID string    `json:"thread_id"`
	Messages []Message `json:"messages"`
	Seq      int64     `json:"seq"`
}

// NewConversationState creates an empty state for a thread.
func NewConversationState(threadID string) *ConversationState {
	return &ConversationState{ThreadID: threadID, Messages: []Message{}}
}

// Last returns the most recent message, if any.
func (s *ConversationState) Last() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// Clone returns a copy safe to hand out to other goroutines.
func (s *ConversationState) Clone() *ConversationState {
	out := &ConversationState{ThreadID: s.ThreadID, Seq: s.Seq, Messages: make([]Message, len(s.Messages))}
	for i, m := range s.Messages {
		out.Messages[i] = m.Clone()
	}
	return out
}

// Record is one durable row: the message added at a given step of a thread.
type Record struct {
	ThreadID  string    `json:"thread_id"`
	Seq       int64     `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
	Message   Message   `json:"message"`
}

// Checkpoint is the immutable outcome of one append.
// Seq is the sequence number of the last record written; Messages are the ones added.
type Checkpoint struct {
	ThreadID  string    `json:"thread_id"`
	Seq       int64     `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
	Messages  []Message `json:"messages"`
}

// NewRecords numbers msgs consecutively after lastSeq.
func NewRecords(threadID string, lastSeq int64, at time.Time, msgs ...Message) []Record {
	records := make([]Record, len(msgs))
	for i, m := range msgs {
		records[i] = Record{ThreadID: threadID, Seq: lastSeq + int64(i) + 1, CreatedAt: at, Message: m.Clone()}
	}
	return records
}

// CheckpointOf summarizes a non-empty batch of records written by one append.
func CheckpointOf(threadID string, records []Record) Checkpoint {
	cp := Checkpoint{ThreadID: threadID, Messages: make([]Message, len(records))}
	for i, r := range records {
		cp.Messages[i] = r.Message
	}
	if n := len(records); n > 0 {
		cp.Seq = records[n-1].Seq
		cp.CreatedAt = records[n-1].CreatedAt
	}
	return cp
}

// Fold rebuilds a thread's state from its records, which must be in write order.
func Fold(threadID string, records []Record) *ConversationState {
	state := NewConversationState(threadID)
	for _, r := range records {
		state.Messages = append(state.Messages, r.Message)
		state.Seq = r.Seq
	}
	return state
}
