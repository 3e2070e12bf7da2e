package bridge

import (
	"sync"

	"github.com/cccckit/cccc/internal/fsutil"
)

// Subscriber is one chat subscribed to a group's outbound stream.
type Subscriber struct {
	ChatID   string `json:"chat_id"`
	ThreadID string `json:"thread_id,omitempty"`
	Verbose  bool   `json:"verbose"`
}

// SubscriberStore is the atomically-persisted state/im_subscribers.json
// file: which chats receive a group's outbound stream and in what mode.
type SubscriberStore struct {
	mu   sync.Mutex
	path string
	subs map[string]*Subscriber // keyed by chat_id
}

// LoadSubscriberStore reads path, tolerating a missing file (empty store).
func LoadSubscriberStore(path string) (*SubscriberStore, error) {
	s := &SubscriberStore{path: path, subs: map[string]*Subscriber{}}
	var list []Subscriber
	if err := fsutil.ReadJSON(path, &list); err != nil {
		if fsutil.Exists(path) {
			return nil, err
		}
		return s, nil
	}
	for i := range list {
		s.subs[list[i].ChatID] = &list[i]
	}
	return s, nil
}

func (s *SubscriberStore) saveLocked() error {
	list := make([]Subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		list = append(list, *sub)
	}
	return fsutil.AtomicWriteJSON(s.path, list, 0o644)
}

// Subscribe adds or updates chatID's subscription and persists the store.
func (s *SubscriberStore) Subscribe(chatID, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[chatID] = &Subscriber{ChatID: chatID, ThreadID: threadID}
	return s.saveLocked()
}

// Unsubscribe removes chatID from the store.
func (s *SubscriberStore) Unsubscribe(chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, chatID)
	return s.saveLocked()
}

// SetVerbose toggles verbose mode for chatID, a no-op if not subscribed.
func (s *SubscriberStore) SetVerbose(chatID string, verbose bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[chatID]
	if !ok {
		return nil
	}
	sub.Verbose = verbose
	return s.saveLocked()
}

// List returns a snapshot of every current subscriber.
func (s *SubscriberStore) List() []Subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, *sub)
	}
	return out
}

// IsSubscribed reports whether chatID currently receives outbound traffic.
func (s *SubscriberStore) IsSubscribed(chatID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.subs[chatID]
	return ok
}
