package conversation

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
)

const maxTitleRunes = 30

// Backend is the durable key/value storage the collection is persisted to.
// Implemented by storage.Store, storage.BoltKV and storage.MemoryKV.
type Backend interface {
	Get(key string) (val string, ok bool, err error)
	Set(key, val string) error
	Delete(key string) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// Store is the single writer of the conversation collection. The whole
// collection is written to the backend after every mutation; across
// processes sharing one backend the last write wins.
type Store struct {
	backend Backend
	key     string
	clock   Clock
	logger  *slog.Logger

	mu            sync.Mutex
	conversations []Conversation
	currentID     string
	live          []Message
	entropy       io.Reader
	persistErr    error
}

// New creates a Store persisting under key. Call Initialize before use.
func New(backend Backend, key string) *Store {
	return NewWithClock(backend, key, realClock{})
}

// NewWithClock creates a Store with a custom clock (for testing).
func NewWithClock(backend Backend, key string, clock Clock) *Store {
	if key == "" {
		key = DefaultStorageKey
	}
	return &Store{
		backend: backend,
		key:     key,
		clock:   clock,
		logger:  slog.Default(),
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Initialize loads the persisted collection. When nothing is stored, or the
// stored document is unreadable, a single fresh conversation becomes current.
// Nothing is written until the first mutation.
func (s *Store) Initialize() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations = nil
	s.currentID = ""
	s.live = nil

	loaded, err := s.load()
	if err != nil {
		s.logger.Warn("discarding stored conversations", "key", s.key, "error", err)
	}
	if len(loaded) == 0 {
		s.insertFreshLocked()
		return
	}

	s.conversations = loaded
	s.currentID = loaded[0].ID
	s.live = cloneMessages(loaded[0].Messages)
}

func (s *Store) load() ([]Conversation, error) {
	raw, ok, err := s.backend.Get(s.key)
	if err != nil {
		return nil, fmt.Errorf("reading stored conversations: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var convs []Conversation
	if err := json.Unmarshal([]byte(raw), &convs); err != nil {
		return nil, fmt.Errorf("parsing stored conversations: %w", err)
	}
	seen := make(map[string]bool, len(convs))
	for i := range convs {
		if convs[i].ID == "" || seen[convs[i].ID] {
			return nil, errors.New("stored conversation with missing or duplicate id")
		}
		seen[convs[i].ID] = true
		if convs[i].Messages == nil {
			convs[i].Messages = []Message{}
		}
	}
	return convs, nil
}

// CreateConversation inserts a new empty conversation at the front of the
// collection, makes it current and returns its id.
func (s *Store) CreateConversation() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.insertFreshLocked()
	s.persistLocked()
	return id
}

func (s *Store) insertFreshLocked() string {
	c := Conversation{
		ID:        s.newIDLocked(),
		Title:     SentinelTitle,
		CreatedAt: s.clock.Now(),
		Messages:  []Message{},
	}
	s.conversations = append([]Conversation{c}, s.conversations...)
	s.currentID = c.ID
	s.live = []Message{}
	return c.ID
}

// SwitchConversation makes id current and loads its messages into the live
// view. It reports false, changing nothing, when id is unknown.
func (s *Store) SwitchConversation(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return false
	}
	s.currentID = id
	s.live = cloneMessages(s.conversations[idx].Messages)
	return true
}

// DeleteConversation removes id. When the current conversation is removed the
// first remaining one becomes current; when none remain a fresh conversation
// is created. Unknown ids are ignored and reported as false.
func (s *Store) DeleteConversation(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return false
	}
	s.conversations = append(s.conversations[:idx:idx], s.conversations[idx+1:]...)

	switch {
	case len(s.conversations) == 0:
		s.insertFreshLocked()
	case id == s.currentID:
		s.currentID = s.conversations[0].ID
		s.live = cloneMessages(s.conversations[0].Messages)
	}
	s.persistLocked()
	return true
}

// Reset drops every conversation and removes the stored document. A fresh
// conversation becomes current; like Initialize, nothing is written until
// the next mutation.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok, err := s.backend.Get(s.key)
	if err != nil {
		return fmt.Errorf("reading stored conversations: %w", err)
	}
	if ok {
		if err := s.backend.Delete(s.key); err != nil {
			return fmt.Errorf("removing stored conversations: %w", err)
		}
	}

	s.conversations = nil
	s.persistErr = nil
	s.insertFreshLocked()
	return nil
}

// AddMessage stamps msg with an id and timestamp and appends it to the
// current conversation. The first user message of an untitled conversation
// becomes its title.
func (s *Store) AddMessage(msg Message) Message {
	m, _ := s.AddCurrentMessage(msg)
	return m
}

// AddCurrentMessage is AddMessage that also returns the id of the
// conversation msg landed in, read under the same lock as the append.
func (s *Store) AddCurrentMessage(msg Message) (Message, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(s.currentID)
	if idx < 0 {
		s.insertFreshLocked()
		idx = 0
	}
	return s.addLocked(idx, msg), s.conversations[idx].ID
}

// AddMessageIfCurrent appends msg like AddMessage, but only while
// conversationID is still the current conversation. It reports false,
// changing nothing, otherwise.
func (s *Store) AddMessageIfCurrent(conversationID string, msg Message) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conversationID == "" || conversationID != s.currentID {
		return Message{}, false
	}
	idx := s.indexLocked(conversationID)
	if idx < 0 {
		return Message{}, false
	}
	return s.addLocked(idx, msg), true
}

func (s *Store) addLocked(idx int, msg Message) Message {
	conv := &s.conversations[idx]

	now := s.clock.Now()
	msg.ID = s.newIDLocked()
	msg.Timestamp = now
	msg = msg.clone()

	if len(conv.Messages) == 0 && msg.Role == RoleUser && conv.Title == SentinelTitle {
		conv.Title = DeriveTitle(msg.Content)
	}
	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = &now
	s.live = append(s.live, msg.clone())

	s.persistLocked()
	return msg.clone()
}

// UpdateMessage merges patch into the message with id in the current
// conversation. It reports false when no such message exists.
func (s *Store) UpdateMessage(id string, patch MessagePatch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(s.currentID)
	if idx < 0 {
		return false
	}
	conv := &s.conversations[idx]

	found := false
	for i := range conv.Messages {
		if conv.Messages[i].ID == id {
			conv.Messages[i].apply(patch)
			found = true
			break
		}
	}
	if !found {
		return false
	}
	for i := range s.live {
		if s.live[i].ID == id {
			s.live[i].apply(patch)
			break
		}
	}
	s.persistLocked()
	return true
}

// ClearCurrentConversation empties the current conversation and resets its
// title. The conversation itself is kept.
func (s *Store) ClearCurrentConversation() {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(s.currentID)
	if idx < 0 {
		return
	}
	s.conversations[idx].Messages = []Message{}
	s.conversations[idx].Title = SentinelTitle
	s.live = []Message{}
	s.persistLocked()
}

// CurrentID returns the id of the current conversation.
func (s *Store) CurrentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentID
}

// Messages returns a copy of the live message view.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneMessages(s.live)
}

// Conversations returns a copy of the collection in stored order.
func (s *Store) Conversations() []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Conversation, len(s.conversations))
	for i, c := range s.conversations {
		out[i] = c.clone()
	}
	return out
}

// Conversation returns a copy of the conversation with id.
func (s *Store) Conversation(id string) (Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return Conversation{}, false
	}
	return s.conversations[idx].clone(), true
}

// LastPersistError returns the error of the most recent failed write, or nil
// if the last write succeeded.
func (s *Store) LastPersistError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistErr
}

func (s *Store) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.conversations {
		if s.conversations[i].ID == id {
			return i
		}
	}
	return -1
}

// persistLocked writes the whole collection. Failures are logged and leave
// the in-memory state authoritative.
func (s *Store) persistLocked() {
	data, err := json.Marshal(s.conversations)
	if err == nil {
		err = s.backend.Set(s.key, string(data))
	}
	if err != nil {
		s.logger.Warn("persisting conversations failed", "key", s.key, "error", err)
		s.persistErr = err
		return
	}
	s.persistErr = nil
}

func (s *Store) newIDLocked() string {
	id, err := ulid.New(ulid.Timestamp(s.clock.Now()), s.entropy)
	if err != nil {
		return ulid.Make().String()
	}
	return id.String()
}

// DeriveTitle truncates content to 30 code points, appending "..." when
// anything was cut.
func DeriveTitle(content string) string {
	if utf8.RuneCountInString(content) <= maxTitleRunes {
		return content
	}
	runes := []rune(content)
	return string(runes[:maxTitleRunes]) + "..."
}
