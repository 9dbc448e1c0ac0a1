package crm

import (
	"context"
	"fmt"

	"github.com/leadline/go-crm-client/api"
)

// CreateClientRequest creates or updates a client account. Pointer fields
// are omitted when nil so partial updates leave them untouched.
type CreateClientRequest struct {
	CompanyID     string   `json:"company_id,omitempty"`
	Name          string   `json:"name,omitempty"`
	Description   string   `json:"description,omitempty"`
	MarketSegment string   `json:"marketSegment,omitempty"`
	SIREN         string   `json:"SIREN,omitempty"`
	SIRET         string   `json:"SIRET,omitempty"`
	PostalCode    string   `json:"code_postal,omitempty"`
	NAFCode       string   `json:"code_NAF,omitempty"`
	Revenue       *float64 `json:"chiffre_d_affaires,omitempty"`
	EBIT          *float64 `json:"EBIT,omitempty"`
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
	MarketShare   *float64 `json:"pdm,omitempty"`
}

// ClientsService accesses the client account collection.
type ClientsService struct {
	api *api.Client
}

func NewClientsService(apiClient *api.Client) *ClientsService {
	return &ClientsService{api: apiClient}
}

func (s *ClientsService) List(ctx context.Context, params ListParams) (*Page[Client], error) {
	var page Page[Client]
	if err := s.api.Get(ctx, "/clients", params.values(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (s *ClientsService) Get(ctx context.Context, id string) (*Client, error) {
	var client Client
	if err := s.api.Get(ctx, "/clients/"+id, nil, &client); err != nil {
		return nil, err
	}
	return &client, nil
}

func (s *ClientsService) Create(ctx context.Context, req CreateClientRequest) (*Client, error) {
	var client Client
	if err := s.api.Post(ctx, "/clients", req, &client); err != nil {
		return nil, err
	}
	return &client, nil
}

func (s *ClientsService) Update(ctx context.Context, id string, req CreateClientRequest) (*Client, error) {
	var client Client
	if err := s.api.Put(ctx, "/clients/"+id, req, &client); err != nil {
		return nil, err
	}
	return &client, nil
}

func (s *ClientsService) Delete(ctx context.Context, id string) error {
	return s.api.Delete(ctx, "/clients/"+id)
}

// Contacts lists the contacts attached to a client account.
func (s *ClientsService) Contacts(ctx context.Context, clientID string, params ListParams) (*Page[Contact], error) {
	var page Page[Contact]
	path := fmt.Sprintf("/clients/%s/contacts", clientID)
	if err := s.api.Get(ctx, path, params.values(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Notes lists the notes attached to a client account.
func (s *ClientsService) Notes(ctx context.Context, clientID string, params ListParams) (*Page[Note], error) {
	var page Page[Note]
	path := fmt.Sprintf("/clients/%s/notes", clientID)
	if err := s.api.Get(ctx, path, params.values(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}
