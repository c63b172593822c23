package binary_api

// Message id range used on the wire. A message id of 0 is reserved: the
// gateway uses it in error responses when no specific message could be
// identified.
const (
	MinMessageID uint32 = 1000
	MaxMessageID uint32 = 2147483647
)

// idSequence issues message ids in [min, max], wrapping to min after max
// has been issued. It is owned by a single connection worker and never
// touched from anywhere else.
type idSequence struct {
	next uint32
	min  uint32
	max  uint32
}

func newIDSequence(min, max uint32) *idSequence {
	return &idSequence{next: min, min: min, max: max}
}

// current returns the id the next message will be sent with.
func (s *idSequence) current() uint32 {
	return s.next
}

// advance moves to the next id, wrapping around at the end of the range.
func (s *idSequence) advance() {
	if s.next >= s.max {
		s.next = s.min
	} else {
		s.next++
	}
}
