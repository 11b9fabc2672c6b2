package notification

import (
	"sync"

	"go.uber.org/zap"
)

const streamBufferSize = 16

// Streams is the recipient-keyed counterpart of the alert bus: each requester
// session subscribes under its own user id and receives only notifications
// addressed to it.
type Streams struct {
	mu     sync.Mutex
	subs   map[string]map[*Stream]struct{}
	logger *zap.Logger
}

func NewStreams(logger *zap.Logger) *Streams {
	return &Streams{
		subs:   make(map[string]map[*Stream]struct{}),
		logger: logger,
	}
}

// Stream is an explicit, caller-owned subscription handle.
type Stream struct {
	streams     *Streams
	recipientID string
	ch          chan *Notification
}

// C returns the notification channel. It is closed when the stream ends.
func (s *Stream) C() <-chan *Notification {
	return s.ch
}

// Close stops delivery immediately. Safe to call more than once.
func (s *Stream) Close() {
	s.streams.drop(s)
}

// Subscribe opens a live stream for one recipient. A recipient may hold
// several streams (multiple tabs/devices); each receives every notification.
func (s *Streams) Subscribe(recipientID string) *Stream {
	stream := &Stream{
		streams:     s,
		recipientID: recipientID,
		ch:          make(chan *Notification, streamBufferSize),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs[recipientID] == nil {
		s.subs[recipientID] = make(map[*Stream]struct{})
	}
	s.subs[recipientID][stream] = struct{}{}
	return stream
}

// Publish pushes a notification to every live stream of its recipient and
// reports how many streams received it. Zero means the recipient is offline
// and the record stays undelivered for the sweep.
func (s *Streams) Publish(n *Notification) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	delivered := 0
	for stream := range s.subs[n.RecipientID] {
		select {
		case stream.ch <- n:
			delivered++
		default:
			s.removeLocked(stream)
			s.logger.Warn("dropping slow notification stream",
				zap.String("recipient_id", n.RecipientID))
		}
	}
	return delivered
}

func (s *Streams) drop(stream *Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(stream)
}

func (s *Streams) removeLocked(stream *Stream) {
	set, ok := s.subs[stream.recipientID]
	if !ok {
		return
	}
	if _, ok := set[stream]; !ok {
		return
	}
	delete(set, stream)
	if len(set) == 0 {
		delete(s.subs, stream.recipientID)
	}
	close(stream.ch)
}
