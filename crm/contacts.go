package crm

import (
	"context"

	"github.com/leadline/go-crm-client/api"
)

// CreateContactRequest creates or updates a contact.
type CreateContactRequest struct {
	ClientID  string `json:"client_id,omitempty"`
	LastName  string `json:"name,omitempty"`
	FirstName string `json:"prenom,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"telephone,omitempty"`
	JobTitle  string `json:"fonction,omitempty"`
}

// ContactsService accesses the contact collection.
type ContactsService struct {
	api *api.Client
}

func NewContactsService(apiClient *api.Client) *ContactsService {
	return &ContactsService{api: apiClient}
}

func (s *ContactsService) List(ctx context.Context, params ListParams) (*Page[Contact], error) {
	var page Page[Contact]
	if err := s.api.Get(ctx, "/contacts", params.values(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (s *ContactsService) Get(ctx context.Context, id string) (*Contact, error) {
	var contact Contact
	if err := s.api.Get(ctx, "/contacts/"+id, nil, &contact); err != nil {
		return nil, err
	}
	return &contact, nil
}

func (s *ContactsService) Create(ctx context.Context, req CreateContactRequest) (*Contact, error) {
	var contact Contact
	if err := s.api.Post(ctx, "/contacts", req, &contact); err != nil {
		return nil, err
	}
	return &contact, nil
}

func (s *ContactsService) Update(ctx context.Context, id string, req CreateContactRequest) (*Contact, error) {
	var contact Contact
	if err := s.api.Put(ctx, "/contacts/"+id, req, &contact); err != nil {
		return nil, err
	}
	return &contact, nil
}

func (s *ContactsService) Delete(ctx context.Context, id string) error {
	return s.api.Delete(ctx, "/contacts/"+id)
}
