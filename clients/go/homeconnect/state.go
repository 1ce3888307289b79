package homeconnect

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// typingExpiry is how long a typing indicator stays on without a fresh
// signal. Covers a missed "stopped typing" push.
const typingExpiry = 3 * time.Second

// ChatState reconciles three sources of truth into one view: the
// REST-fetched conversation history, live socket pushes, and the user's
// own optimistic sends. A fresh history fetch always replaces local
// state wholesale; pushes are treated as hints on top of it.
type ChatState struct {
	mu sync.Mutex

	userID      string
	counterpart string // empty means no thread open
	messages    []Message
	seen        map[string]bool // persisted ids present in messages

	tempSeq int

	typingFrom  string
	typingUntil time.Time

	lastError string
}

func NewChatState(userID string) *ChatState {
	return &ChatState{
		userID: userID,
		seen:   make(map[string]bool),
	}
}

// OpenThread switches to the thread with counterpartID, replacing the
// local message sequence with the fetched history. Pending optimistic
// echoes from a previous thread are discarded with it.
func (s *ChatState) OpenThread(counterpartID string, history []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counterpart = counterpartID
	s.messages = make([]Message, len(history))
	copy(s.messages, history)
	s.seen = make(map[string]bool, len(history))
	for _, m := range history {
		s.seen[m.ID] = true
	}
	s.typingFrom = ""
	s.lastError = ""
}

// CloseThread returns to the no-thread-open state.
func (s *ChatState) CloseThread() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counterpart = ""
	s.messages = nil
	s.seen = make(map[string]bool)
	s.typingFrom = ""
}

// Open reports the currently open counterpart, if any.
func (s *ChatState) Open() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counterpart, s.counterpart != ""
}

// AppendLocal adds an optimistic local echo of an outgoing message and
// returns its temporary id. The echo is replaced by the persisted
// message when the messageSent ack arrives, or removed on messageError.
func (s *ChatState) AppendLocal(body string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.counterpart == "" {
		return "", fmt.Errorf("no thread open")
	}

	s.tempSeq++
	tempID := fmt.Sprintf("tmp-%d", s.tempSeq)

	s.messages = append(s.messages, Message{
		ID:         tempID,
		SenderID:   s.userID,
		ReceiverID: s.counterpart,
		Body:       body,
		Timestamp:  time.Now(),
		Pending:    true,
	})
	return tempID, nil
}

// HandleEvent folds one socket event into the local state.
func (s *ChatState) HandleEvent(ev Event) {
	switch ev.Event {
	case EventReceiveMessage:
		var m Message
		if err := json.Unmarshal(ev.Data, &m); err != nil {
			return
		}
		s.appendRemote(m)

	case EventMessageSent:
		var ack struct {
			Success bool     `json:"success"`
			Message *Message `json:"message"`
			TempID  string   `json:"tempId"`
		}
		if err := json.Unmarshal(ev.Data, &ack); err != nil || ack.Message == nil {
			return
		}
		s.resolvePending(ack.TempID, ack.Message)

	case EventMessageError:
		var fail struct {
			Error  string `json:"error"`
			TempID string `json:"tempId"`
		}
		if err := json.Unmarshal(ev.Data, &fail); err != nil {
			return
		}
		s.failPending(fail.TempID, fail.Error)

	case EventUserTyping:
		var sig struct {
			SenderID string `json:"senderId"`
			IsTyping bool   `json:"isTyping"`
		}
		if err := json.Unmarshal(ev.Data, &sig); err != nil {
			return
		}
		s.setTyping(sig.SenderID, sig.IsTyping)
	}
}

// appendRemote appends a pushed message if it belongs to the open
// thread. Everything else is dropped: the conversation list picks it up
// on the next REST fetch.
func (s *ChatState) appendRemote(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.counterpart == "" {
		return
	}
	if m.SenderID != s.counterpart && m.ReceiverID != s.counterpart {
		return
	}
	if s.seen[m.ID] {
		return
	}

	s.seen[m.ID] = true
	s.messages = append(s.messages, m)
}

// resolvePending swaps the optimistic echo for the persisted message.
// If the push already delivered the persisted copy, the echo is just
// dropped.
func (s *ChatState) resolvePending(tempID string, persisted *Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.findPending(tempID)
	if s.seen[persisted.ID] {
		if idx >= 0 {
			s.messages = append(s.messages[:idx], s.messages[idx+1:]...)
		}
		return
	}

	s.seen[persisted.ID] = true
	if idx >= 0 {
		s.messages[idx] = *persisted
		return
	}
	if s.counterpart != "" && (persisted.SenderID == s.counterpart || persisted.ReceiverID == s.counterpart) {
		s.messages = append(s.messages, *persisted)
	}
}

func (s *ChatState) failPending(tempID, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastError = errMsg
	if idx := s.findPending(tempID); idx >= 0 {
		s.messages = append(s.messages[:idx], s.messages[idx+1:]...)
	}
}

// findPending requires the lock to be held.
func (s *ChatState) findPending(tempID string) int {
	if tempID == "" {
		return -1
	}
	for i, m := range s.messages {
		if m.Pending && m.ID == tempID {
			return i
		}
	}
	return -1
}

func (s *ChatState) setTyping(senderID string, isTyping bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.counterpart == "" || senderID != s.counterpart {
		return
	}
	if isTyping {
		s.typingFrom = senderID
		s.typingUntil = time.Now().Add(typingExpiry)
	} else {
		s.typingFrom = ""
	}
}

// Messages returns a copy of the current thread view.
func (s *ChatState) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// TypingActive reports whether the counterpart's typing indicator should
// be shown at the given instant.
func (s *ChatState) TypingActive(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typingFrom != "" && now.Before(s.typingUntil)
}

// LastError returns the most recent send failure, for the inline error
// banner. Resends are user initiated, never automatic.
func (s *ChatState) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}
