package crm

import (
	"context"
	"fmt"
	"time"

	"github.com/leadline/go-crm-client/api"
)

// CreateTaskRequest creates or updates a task.
type CreateTaskRequest struct {
	InteractionID string     `json:"interaction_id,omitempty"`
	Title         string     `json:"titre,omitempty"`
	Description   string     `json:"description,omitempty"`
	Status        TaskStatus `json:"statut,omitempty"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	AssignedTo    string     `json:"assigned_to,omitempty"`
}

// TasksService accesses the task collection.
type TasksService struct {
	api *api.Client
}

func NewTasksService(apiClient *api.Client) *TasksService {
	return &TasksService{api: apiClient}
}

func (s *TasksService) List(ctx context.Context, params ListParams) (*Page[Task], error) {
	var page Page[Task]
	if err := s.api.Get(ctx, "/tasks", params.values(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (s *TasksService) Get(ctx context.Context, id string) (*Task, error) {
	var task Task
	if err := s.api.Get(ctx, "/tasks/"+id, nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// ByInteraction lists the tasks attached to an interaction.
func (s *TasksService) ByInteraction(ctx context.Context, interactionID string, params ListParams) (*Page[Task], error) {
	var page Page[Task]
	path := fmt.Sprintf("/interactions/%s/tasks", interactionID)
	if err := s.api.Get(ctx, path, params.values(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ByUser lists the tasks assigned to a user.
func (s *TasksService) ByUser(ctx context.Context, userID string, params ListParams) (*Page[Task], error) {
	var page Page[Task]
	path := fmt.Sprintf("/users/%s/tasks", userID)
	if err := s.api.Get(ctx, path, params.values(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (s *TasksService) Create(ctx context.Context, req CreateTaskRequest) (*Task, error) {
	var task Task
	if err := s.api.Post(ctx, "/tasks", req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *TasksService) Update(ctx context.Context, id string, req CreateTaskRequest) (*Task, error) {
	var task Task
	if err := s.api.Put(ctx, "/tasks/"+id, req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *TasksService) Delete(ctx context.Context, id string) error {
	return s.api.Delete(ctx, "/tasks/"+id)
}

// Complete marks a task completed without touching its other fields.
func (s *TasksService) Complete(ctx context.Context, id string) (*Task, error) {
	var task Task
	if err := s.api.Put(ctx, fmt.Sprintf("/tasks/%s/complete", id), struct{}{}, &task); err != nil {
		return nil, err
	}
	return &task, nil
}
