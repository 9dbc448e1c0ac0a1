package crm

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/leadline/go-crm-client/api"
)

// CreateLeadRequest creates or updates a lead.
type CreateLeadRequest struct {
	ClientID       string     `json:"client_id,omitempty"`
	Name           string     `json:"name,omitempty"`
	Source         LeadSource `json:"source,omitempty"`
	Status         LeadStatus `json:"statut,omitempty"`
	EstimatedValue *float64   `json:"valeur_estimee,omitempty"`
}

// LeadListParams extends the standard pagination with lead-only filters.
type LeadListParams struct {
	ListParams
	ClientID string // restrict to one client account
	Personal bool   // only leads assigned to the requesting user
}

func (p LeadListParams) values() url.Values {
	v := p.ListParams.values()
	if p.ClientID != "" {
		v.Set("client_id", p.ClientID)
	}
	if p.Personal {
		v.Set("personal", strconv.FormatBool(p.Personal))
	}
	return v
}

// LeadsService accesses the lead collection.
type LeadsService struct {
	api *api.Client
}

func NewLeadsService(apiClient *api.Client) *LeadsService {
	return &LeadsService{api: apiClient}
}

func (s *LeadsService) List(ctx context.Context, params LeadListParams) (*LeadPage, error) {
	var page LeadPage
	if err := s.api.Get(ctx, "/leads", params.values(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (s *LeadsService) Get(ctx context.Context, id string) (*Lead, error) {
	var lead Lead
	if err := s.api.Get(ctx, "/leads/"+id, nil, &lead); err != nil {
		return nil, err
	}
	return &lead, nil
}

func (s *LeadsService) Create(ctx context.Context, req CreateLeadRequest) (*Lead, error) {
	var lead Lead
	if err := s.api.Post(ctx, "/leads", req, &lead); err != nil {
		return nil, err
	}
	return &lead, nil
}

func (s *LeadsService) Update(ctx context.Context, id string, req CreateLeadRequest) (*Lead, error) {
	var lead Lead
	if err := s.api.Put(ctx, "/leads/"+id, req, &lead); err != nil {
		return nil, err
	}
	return &lead, nil
}

func (s *LeadsService) Delete(ctx context.Context, id string) error {
	return s.api.Delete(ctx, "/leads/"+id)
}

// Assign moves a lead to another user.
func (s *LeadsService) Assign(ctx context.Context, leadID, userID string) (*Lead, error) {
	var lead Lead
	body := map[string]string{"userId": userID}
	if err := s.api.Put(ctx, fmt.Sprintf("/leads/%s/assign", leadID), body, &lead); err != nil {
		return nil, err
	}
	return &lead, nil
}

// Interactions lists the interactions recorded on a lead.
func (s *LeadsService) Interactions(ctx context.Context, leadID string, params ListParams) (*Page[Interaction], error) {
	var page Page[Interaction]
	path := fmt.Sprintf("/leads/%s/interactions", leadID)
	if err := s.api.Get(ctx, path, params.values(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}
