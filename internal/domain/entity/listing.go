package entity

import "time"

// Listing is the rental property a conversation may have originated
// from. Listing CRUD lives outside the messaging core; messages only
// carry a listing id as context, resolved read-only for display.
type Listing struct {
	ID         string    `json:"id" firestore:"id"`
	LandlordID string    `json:"landlordId" firestore:"landlordId"`
	Title      string    `json:"title" firestore:"title"`
	City       string    `json:"city,omitempty" firestore:"city,omitempty"`
	Price      float64   `json:"price,omitempty" firestore:"price,omitempty"`
	ImageURL   string    `json:"image_url,omitempty" firestore:"imageURL,omitempty"`
	CreatedAt  time.Time `json:"created_at" firestore:"createdAt"`
}
