package binary_api

import (
	"fmt"
	"testing"

	"github.com/uniqush/apnsgate/test_util"
)

func TestIDSequenceWrapsAroundRange(t *testing.T) {
	seq := newIDSequence(5, 7)
	var issued []uint32
	for i := 0; i < 7; i++ {
		issued = append(issued, seq.current())
		seq.advance()
	}
	test_util.ExpectEquals(t, []uint32{5, 6, 7, 5, 6, 7, 5}, issued, "sequence should wrap to min after max")
}

func TestIDSequenceStartsAtMin(t *testing.T) {
	seq := newIDSequence(MinMessageID, MaxMessageID)
	test_util.ExpectEquals(t, MinMessageID, seq.current(), "first id should be the range minimum")
}

func historyEntry(msgID uint32) sentMessage {
	return sentMessage{
		msgID:    msgID,
		devToken: fmt.Sprintf("token-%v", msgID),
		frame:    []byte{byte(msgID)},
	}
}

func historyIDs(h *sentHistory) []uint32 {
	var ids []uint32
	h.each(func(m sentMessage) {
		ids = append(ids, m.msgID)
	})
	return ids
}

func TestSentHistoryRetainsInsertionOrder(t *testing.T) {
	h := newSentHistory(5)
	for _, id := range []uint32{10, 11, 12} {
		h.add(historyEntry(id))
	}
	test_util.ExpectEquals(t, 3, h.len(), "wrong history size")
	test_util.ExpectEquals(t, []uint32{10, 11, 12}, historyIDs(h), "wrong order")
}

func TestSentHistoryEvictsOldestWhenFull(t *testing.T) {
	h := newSentHistory(3)
	for _, id := range []uint32{10, 11, 12, 13, 14} {
		h.add(historyEntry(id))
	}
	test_util.ExpectEquals(t, 3, h.len(), "history should be capped at its capacity")
	test_util.ExpectEquals(t, []uint32{12, 13, 14}, historyIDs(h), "oldest entries should have been evicted")

	if _, ok := h.lookup(10); ok {
		t.Error("evicted id should no longer be found")
	}
	m, ok := h.lookup(13)
	if !ok {
		t.Fatal("retained id not found")
	}
	test_util.ExpectStringEquals(t, "token-13", m.devToken, "wrong token for retained id")
}

func TestBacklogQueueEvictsOldestWhenFull(t *testing.T) {
	q := newBacklogQueue(3)
	for i := 0; i < 3; i++ {
		if q.enqueue(queuedMessage{devToken: fmt.Sprintf("t%v", i)}) {
			t.Errorf("enqueue %v should not evict", i)
		}
	}
	if !q.enqueue(queuedMessage{devToken: "t3"}) {
		t.Error("enqueue into a full queue should report an eviction")
	}
	test_util.ExpectEquals(t, 3, q.qsize(), "queue should be capped at its capacity")

	drained := q.drainAll()
	var tokens []string
	for _, m := range drained {
		tokens = append(tokens, m.devToken)
	}
	test_util.ExpectEquals(t, []string{"t1", "t2", "t3"}, tokens, "drain should return FIFO order minus the evicted entry")
	test_util.ExpectEquals(t, 0, q.qsize(), "queue should be empty after a drain")
	if q.drainAll() != nil {
		t.Error("draining an empty queue should return nil")
	}
}

func TestBacklogQueueConcurrentProducers(t *testing.T) {
	q := newBacklogQueue(16)
	done := make(chan bool)
	for p := 0; p < 8; p++ {
		go func(p int) {
			for i := 0; i < 100; i++ {
				q.enqueue(queuedMessage{devToken: fmt.Sprintf("p%v-%v", p, i)})
			}
			done <- true
		}(p)
	}
	for p := 0; p < 8; p++ {
		<-done
	}
	test_util.ExpectEquals(t, 16, q.qsize(), "queue should hold exactly its capacity after saturation")
	test_util.ExpectEquals(t, 16, len(q.drainAll()), "drain should return everything retained")
}
