package crm

import (
	"context"

	"github.com/leadline/go-crm-client/api"
)

// CreateNoteRequest creates or updates a note.
type CreateNoteRequest struct {
	ClientID string `json:"client_id,omitempty"`
	Content  string `json:"contenu,omitempty"`
}

// NotesService accesses the note collection.
type NotesService struct {
	api *api.Client
}

func NewNotesService(apiClient *api.Client) *NotesService {
	return &NotesService{api: apiClient}
}

func (s *NotesService) List(ctx context.Context, params ListParams) (*Page[Note], error) {
	var page Page[Note]
	if err := s.api.Get(ctx, "/notes", params.values(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (s *NotesService) Get(ctx context.Context, id string) (*Note, error) {
	var note Note
	if err := s.api.Get(ctx, "/notes/"+id, nil, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

func (s *NotesService) Create(ctx context.Context, req CreateNoteRequest) (*Note, error) {
	var note Note
	if err := s.api.Post(ctx, "/notes", req, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

func (s *NotesService) Update(ctx context.Context, id string, req CreateNoteRequest) (*Note, error) {
	var note Note
	if err := s.api.Put(ctx, "/notes/"+id, req, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

func (s *NotesService) Delete(ctx context.Context, id string) error {
	return s.api.Delete(ctx, "/notes/"+id)
}
