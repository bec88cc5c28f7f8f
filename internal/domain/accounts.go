package domain

// APIKey is a machine credential. Only the SHA-256 hash is stored.
type APIKey struct {
	ID        string   `json:"id"`
	ActorID   string   `json:"actor_id"`
	Name      string   `json:"name,omitempty"`
	KeyHash   string   `json:"-"`
	Scopes    []string `json:"scopes,omitempty"`
	CreatedAt string   `json:"created_at" format:"date-time"`
}

// Subscription states reported by the billing provider.
const (
	SubscriptionActive   = "active"
	SubscriptionPastDue  = "past_due"
	SubscriptionCanceled = "canceled"
)

// Subscription mirrors the billing provider's view of a user. It is written
// only by the billing webhook and read by premium feature gates.
type Subscription struct {
	UserID           string `json:"user_id"`
	Status           string `json:"status" enum:"active,past_due,canceled"`
	Plan             string `json:"plan,omitempty"`
	CurrentPeriodEnd string `json:"current_period_end,omitempty" format:"date-time"`
	UpdatedAt        string `json:"updated_at" format:"date-time"`
}
