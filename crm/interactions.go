package crm

import (
	"context"
	"time"

	"github.com/leadline/go-crm-client/api"
)

// CreateInteractionRequest creates or updates an interaction. ContactIDs
// associates contacts with the interaction at creation time.
type CreateInteractionRequest struct {
	LeadID      string          `json:"lead_id,omitempty"`
	Date        *time.Time      `json:"date_interaction,omitempty"`
	Type        InteractionType `json:"type_interaction,omitempty"`
	Description string          `json:"description,omitempty"`
	ContactIDs  []string        `json:"contact_ids,omitempty"`
}

// InteractionsService accesses the interaction collection.
type InteractionsService struct {
	api *api.Client
}

func NewInteractionsService(apiClient *api.Client) *InteractionsService {
	return &InteractionsService{api: apiClient}
}

func (s *InteractionsService) List(ctx context.Context, params ListParams) (*Page[Interaction], error) {
	var page Page[Interaction]
	if err := s.api.Get(ctx, "/interactions", params.values(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (s *InteractionsService) Get(ctx context.Context, id string) (*Interaction, error) {
	var interaction Interaction
	if err := s.api.Get(ctx, "/interactions/"+id, nil, &interaction); err != nil {
		return nil, err
	}
	return &interaction, nil
}

func (s *InteractionsService) Create(ctx context.Context, req CreateInteractionRequest) (*Interaction, error) {
	var interaction Interaction
	if err := s.api.Post(ctx, "/interactions", req, &interaction); err != nil {
		return nil, err
	}
	return &interaction, nil
}

func (s *InteractionsService) Update(ctx context.Context, id string, req CreateInteractionRequest) (*Interaction, error) {
	var interaction Interaction
	if err := s.api.Put(ctx, "/interactions/"+id, req, &interaction); err != nil {
		return nil, err
	}
	return &interaction, nil
}

func (s *InteractionsService) Delete(ctx context.Context, id string) error {
	return s.api.Delete(ctx, "/interactions/"+id)
}
