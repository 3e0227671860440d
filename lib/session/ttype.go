package session

import "github.com/eapache/queue"

// TerminalTypes is the FIFO of names handed out to terminal-type requests.
// Servers that ask repeatedly walk the list; once the queue runs dry the
// fallback is pushed before popping, so an exhausted queue keeps answering
// with the same stable value instead of cycling. Not safe for concurrent
// use; the owning session serializes access.
type TerminalTypes struct {
	q *queue.Queue
}

// NewTerminalTypes builds the queue preloaded with names, front first.
func NewTerminalTypes(names []string) *TerminalTypes {
	t := &TerminalTypes{q: queue.New()}
	for _, n := range names {
		t.q.Add(n)
	}
	return t
}

// Pop removes and returns the front name. An empty queue yields fallback,
// and keeps yielding it on later pops.
func (t *TerminalTypes) Pop(fallback string) string {
	if t.q.Length() == 0 {
		t.q.Add(fallback)
	}
	return t.q.Remove().(string)
}

// Replace drops everything queued and leaves name as the only entry.
func (t *TerminalTypes) Replace(name string) {
	for t.q.Length() > 0 {
		t.q.Remove()
	}
	t.q.Add(name)
}

// Len reports how many names are queued.
func (t *TerminalTypes) Len() int { return t.q.Length() }

// Names returns a copy of the queued names, front first.
func (t *TerminalTypes) Names() []string {
	names := make([]string, 0, t.q.Length())
	for i := 0; i < t.q.Length(); i++ {
		names = append(names, t.q.Get(i).(string))
	}
	return names
}
