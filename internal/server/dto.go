package server

import (
	"encoding/json"

	"weekendwill/internal/domain"
)

// Request payloads

type CreateWillRequest struct {
	State string `json:"state,omitempty" doc:"Two-letter state code for compliance rules"`
}

type PersonRequest struct {
	FirstName    string          `json:"first_name"`
	LastName     string          `json:"last_name"`
	Relationship string          `json:"relationship,omitempty"`
	Email        string          `json:"email,omitempty"`
	Phone        string          `json:"phone,omitempty"`
	Address      *domain.Address `json:"address,omitempty"`
	IsPrimary    bool            `json:"is_primary,omitempty"`
}

func (r PersonRequest) toDomain(id string) domain.Person {
	return domain.Person{
		ID:           id,
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		Relationship: r.Relationship,
		Email:        r.Email,
		Phone:        r.Phone,
		Address:      r.Address,
		IsPrimary:    r.IsPrimary,
	}
}

type AssetRequest struct {
	Type           string          `json:"type"`
	Description    string          `json:"description"`
	EstimatedValue float64         `json:"estimated_value,omitempty"`
	Address        *domain.Address `json:"address,omitempty"`
}

func (r AssetRequest) toDomain(id string) domain.Asset {
	return domain.Asset{
		ID:             id,
		Type:           r.Type,
		Description:    r.Description,
		EstimatedValue: r.EstimatedValue,
		Address:        r.Address,
	}
}

type ChatMessageRequest struct {
	Role    string `json:"role" enum:"user,assistant"`
	Content string `json:"content"`
}

type PhotoRequest struct {
	URL     string   `json:"url"`
	Caption string   `json:"caption,omitempty"`
	ItemIDs []string `json:"item_ids,omitempty"`
	Name    string   `json:"name,omitempty"`
	Size    int64    `json:"size,omitempty"`
}

type DocumentRequest struct {
	URL  string `json:"url"`
	Size int64  `json:"size,omitempty"`
}

type InterviewSubmitRequest struct {
	Sections map[string]json.RawMessage `json:"sections"`
	Version  int                        `json:"version,omitempty" doc:"Optimistic lock; 0 skips the check"`
}

type BillingWebhookRequest struct {
	UserID           string `json:"user_id"`
	Status           string `json:"status" enum:"active,past_due,canceled"`
	Plan             string `json:"plan,omitempty"`
	CurrentPeriodEnd string `json:"current_period_end,omitempty" format:"date-time"`
}

type DevLoginRequest struct {
	UserID string   `json:"user_id"`
	Scopes []string `json:"scopes,omitempty"`
}

// Response payloads

type WillSummary struct {
	ID              string          `json:"id"`
	Status          string          `json:"status" enum:"draft,completed,executed"`
	StateCompliance string          `json:"state_compliance"`
	Progress        domain.Progress `json:"progress"`
	Version         int             `json:"version"`
	CreatedAt       string          `json:"created_at" format:"date-time"`
	UpdatedAt       string          `json:"updated_at" format:"date-time"`
}

func summarize(w domain.Will) WillSummary {
	return WillSummary{
		ID:              w.ID,
		Status:          w.Status,
		StateCompliance: w.StateCompliance,
		Progress:        w.Progress,
		Version:         w.Version,
		CreatedAt:       w.CreatedAt,
		UpdatedAt:       w.UpdatedAt,
	}
}

func summarizeAll(wills []domain.Will) []WillSummary {
	res := make([]WillSummary, 0, len(wills))
	for _, w := range wills {
		res = append(res, summarize(w))
	}
	return res
}

type SearchResponse struct {
	Wills []WillSummary `json:"wills"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
	Pages int           `json:"pages"`
}

type ExecutionStatusResponse struct {
	CanBeExecuted bool     `json:"can_be_executed"`
	Status        string   `json:"status" enum:"draft,completed,executed"`
	Blockers      []string `json:"blockers,omitempty"`
}

type TokenResponse struct {
	Token string `json:"token"`
}
