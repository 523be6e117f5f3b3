package models

import "time"

// User is the read-only identity projection the core consumes.
// Profile fields are owned by the identity service.
type User struct {
	ID             string    `json:"id"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Email          string    `json:"-"`
	PhotoKey       string    `json:"-"`
	PushToken      *string   `json:"-"`
	IsPremium      bool      `json:"is_premium"`
	MembershipTier Tier      `json:"membership_tier,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// DisplayName returns the name shown to other users.
func (u *User) DisplayName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// PublicProfile is the projection of a user that other users may see
type PublicProfile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	PhotoURL    string `json:"photo_url,omitempty"`
}

// RequestStatus is the state of a connection request
type RequestStatus string

const (
	StatusInterested RequestStatus = "interested"
	StatusIgnored    RequestStatus = "ignored"
	StatusAccepted   RequestStatus = "accepted"
	StatusRejected   RequestStatus = "rejected"
)

// IsInitial reports whether a request may be created with this status.
func (s RequestStatus) IsInitial() bool {
	return s == StatusInterested || s == StatusIgnored
}

// IsDecision reports whether a reviewer may move an interested request to this status.
func (s RequestStatus) IsDecision() bool {
	return s == StatusAccepted || s == StatusRejected
}

// ConnectionRequest is a directional interest signal between two users.
type ConnectionRequest struct {
	ID         string        `json:"id"`
	FromUserID string        `json:"from_user_id"`
	ToUserID   string        `json:"to_user_id"`
	Status     RequestStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// IncomingRequest is a pending request joined with its sender's profile
type IncomingRequest struct {
	ConnectionRequest
	From PublicProfile `json:"from"`
}

// ChatThread is the transcript for one unordered pair of users.
// UserLowID is always lexicographically smaller than UserHighID.
type ChatThread struct {
	ID         string    `json:"id"`
	UserLowID  string    `json:"user_low_id"`
	UserHighID string    `json:"user_high_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Message is one appended chat message
type Message struct {
	ID         int64     `json:"id"`
	ThreadID   string    `json:"thread_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

// Transcript is a thread with its messages ordered oldest-first
type Transcript struct {
	Thread   ChatThread `json:"thread"`
	Messages []Message  `json:"messages"`
}

// Tier is a paid membership tier
type Tier string

const (
	TierSilver Tier = "Silver"
	TierGold   Tier = "Gold"
)

// PaymentStatus is the status of a payment intent
type PaymentStatus string

const (
	PaymentCreated  PaymentStatus = "created"
	PaymentCaptured PaymentStatus = "captured"
	PaymentFailed   PaymentStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentCaptured || s == PaymentFailed
}

// PaymentNotes is the provider metadata captured when the intent is created
type PaymentNotes struct {
	Tier      Tier   `json:"membershipType"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// Payment is an entitlement record, one per provider order.
type Payment struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	OrderID   string        `json:"order_id"`
	Tier      Tier          `json:"tier"`
	Amount    int64         `json:"amount"`
	Currency  string        `json:"currency"`
	Status    PaymentStatus `json:"status"`
	Receipt   string        `json:"receipt"`
	Notes     PaymentNotes  `json:"notes"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Entitlement is the premium projection of a user
type Entitlement struct {
	UserID    string `json:"user_id"`
	IsPremium bool   `json:"is_premium"`
	Tier      Tier   `json:"tier,omitempty"`
}

// WebhookDelivery is an audit row for a verified provider webhook.
type WebhookDelivery struct {
	EventID    string        `json:"event_id"`
	OrderID    string        `json:"order_id"`
	Event      string        `json:"event"`
	Status     PaymentStatus `json:"status"`
	Payload    []byte        `json:"-"`
	Applied    bool          `json:"applied"`
	ReceivedAt time.Time     `json:"received_at"`
}
