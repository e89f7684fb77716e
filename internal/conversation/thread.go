package conversation

import "github.com/spec-kit/ticket-conversation/internal/domain"

// thread reconciles the initially fetched message history with live insert
// events into one gapless, duplicate-free sequence. The initial ascending
// fetch defines the baseline order; live events append in delivery order.
// Insertion is an upsert by message identity so a replayed event (e.g.
// reconnection replay) never produces a visible duplicate.
type thread struct {
	ordered []domain.Message
	index   map[string]int
}

func newThread() thread {
	return thread{index: make(map[string]int)}
}

// Init replaces the sequence with the baseline fetch.
func (t *thread) Init(msgs []domain.Message) {
	t.ordered = make([]domain.Message, 0, len(msgs))
	t.index = make(map[string]int, len(msgs))
	for _, msg := range msgs {
		t.Upsert(msg)
	}
}

// Upsert appends msg unless its identity is already present, in which case
// the stored copy is refreshed in place. Reports whether the message was new.
func (t *thread) Upsert(msg domain.Message) bool {
	if pos, ok := t.index[msg.ID]; ok {
		// Never regress the read marker on a replayed event.
		if t.ordered[pos].ReadByCustomer {
			msg.ReadByCustomer = true
		}
		if t.ordered[pos].ReadByAgent {
			msg.ReadByAgent = true
		}
		t.ordered[pos] = msg
		return false
	}
	t.index[msg.ID] = len(t.ordered)
	t.ordered = append(t.ordered, msg)
	return true
}

// MarkRead sets the customer read marker for one message. Monotonic.
func (t *thread) MarkRead(messageID string) {
	if pos, ok := t.index[messageID]; ok {
		t.ordered[pos].ReadByCustomer = true
	}
}

// MarkNonCustomerRead applies the bulk read pass to the local projection.
func (t *thread) MarkNonCustomerRead() {
	for i := range t.ordered {
		if !t.ordered[i].FromCustomer() {
			t.ordered[i].ReadByCustomer = true
		}
	}
}

// Messages returns a copy of the current sequence.
func (t *thread) Messages() []domain.Message {
	out := make([]domain.Message, len(t.ordered))
	copy(out, t.ordered)
	return out
}

// Len reports the number of distinct messages held.
func (t *thread) Len() int {
	return len(t.ordered)
}
