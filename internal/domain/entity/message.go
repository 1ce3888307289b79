package entity

import (
	"sort"
	"time"
)

// Message is one directed text communication between two users. Messages
// are immutable after creation except for the receiver-settable Read flag.
type Message struct {
	ID         string    `json:"id" firestore:"id"`
	SenderID   string    `json:"senderId" firestore:"senderId"`
	ReceiverID string    `json:"receiverId" firestore:"receiverId"`
	Body       string    `json:"body" firestore:"body"`
	ListingID  string    `json:"listingId,omitempty" firestore:"listingId,omitempty"`
	Timestamp  time.Time `json:"timestamp" firestore:"timestamp"`
	Read       bool      `json:"read" firestore:"read"`

	// Participants duplicates {SenderID, ReceiverID} so the viewer's
	// full message set can be fetched with a single array-contains query.
	Participants []string `json:"-" firestore:"participants"`

	// PairKey is the canonical unordered-pair index key, see PairKey().
	PairKey string `json:"-" firestore:"pairKey"`
}

// PairKey returns the canonical key for the unordered user pair {a, b}.
// Both orderings of the same pair map to the same key, which makes
// history queries symmetric.
func PairKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return ids[0] + "|" + ids[1]
}

// Counterpart returns the other participant relative to userID.
func (m *Message) Counterpart(userID string) string {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}
