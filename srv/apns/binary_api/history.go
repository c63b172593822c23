/*
 * Copyright 2011-2013 Nan Deng
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package binary_api

// sentMessage is one frame retained after transmission so that it can be
// retransmitted if the gateway later reports an error for an earlier
// message. The device token is kept in its caller-facing base64 form for
// failure reporting.
type sentMessage struct {
	msgID    uint32
	devToken string
	frame    []byte
}

// sentHistory is a fixed-capacity record of the most recently sent frames,
// ordered oldest to newest. When full, adding evicts the oldest entry.
// A ring plus an id index gives O(1) append, eviction and lookup.
type sentHistory struct {
	entries []sentMessage
	index   map[uint32]int
	head    int
	size    int
}

func newSentHistory(capacity int) *sentHistory {
	if capacity < 1 {
		capacity = 1
	}
	return &sentHistory{
		entries: make([]sentMessage, capacity),
		index:   make(map[uint32]int, capacity),
	}
}

// add appends m as the newest entry, evicting the oldest if the ring is full.
func (h *sentHistory) add(m sentMessage) {
	if h.size == len(h.entries) {
		delete(h.index, h.entries[h.head].msgID)
		h.entries[h.head] = m
		h.index[m.msgID] = h.head
		h.head = (h.head + 1) % len(h.entries)
		return
	}
	slot := (h.head + h.size) % len(h.entries)
	h.entries[slot] = m
	h.index[m.msgID] = slot
	h.size++
}

// lookup finds the retained message with the given id.
func (h *sentHistory) lookup(msgID uint32) (sentMessage, bool) {
	slot, ok := h.index[msgID]
	if !ok {
		return sentMessage{}, false
	}
	return h.entries[slot], true
}

func (h *sentHistory) len() int {
	return h.size
}

// each visits the retained messages from oldest to newest.
func (h *sentHistory) each(visit func(m sentMessage)) {
	for i := 0; i < h.size; i++ {
		visit(h.entries[(h.head+i)%len(h.entries)])
	}
}
