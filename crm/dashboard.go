package crm

import (
	"context"

	"github.com/pkg/errors"

	"github.com/leadline/go-crm-client/api"
	"github.com/leadline/go-crm-client/internal/utils"
)

// Counts are the aggregate totals shown on the dashboard.
type Counts struct {
	Clients      int
	Contacts     int
	Leads        int
	Tasks        int
	PipelineEUR  float64 // summed estimated value of the first page of leads
	LeadsSampled int     // how many leads the pipeline sum covers
}

// ClientLocation is a map marker for a client with known coordinates.
type ClientLocation struct {
	ClientID  string
	Name      string
	Latitude  float64
	Longitude float64
}

// DashboardService derives the dashboard's aggregates from the collection
// endpoints. The API exposes no dedicated aggregation endpoint; totals come
// from the list envelopes.
type DashboardService struct {
	clients  *ClientsService
	contacts *ContactsService
	leads    *LeadsService
	tasks    *TasksService
}

func NewDashboardService(apiClient *api.Client) *DashboardService {
	return &DashboardService{
		clients:  NewClientsService(apiClient),
		contacts: NewContactsService(apiClient),
		leads:    NewLeadsService(apiClient),
		tasks:    NewTasksService(apiClient),
	}
}

// Overview fetches the aggregate counts. Lists are requested with limit 1;
// only the totals are read, except leads where the first page feeds the
// pipeline value sum.
func (s *DashboardService) Overview(ctx context.Context) (*Counts, error) {
	counts := &Counts{}

	clients, err := s.clients.List(ctx, ListParams{Page: 1, Limit: 1})
	if err != nil {
		return nil, errors.Wrap(err, "[Dashboard.Overview] clients")
	}
	counts.Clients = clients.Total

	contacts, err := s.contacts.List(ctx, ListParams{Page: 1, Limit: 1})
	if err != nil {
		return nil, errors.Wrap(err, "[Dashboard.Overview] contacts")
	}
	counts.Contacts = contacts.Total

	leads, err := s.leads.List(ctx, LeadListParams{ListParams: ListParams{Page: 1, Limit: 100}})
	if err != nil {
		return nil, errors.Wrap(err, "[Dashboard.Overview] leads")
	}
	counts.Leads = leads.Total
	counts.LeadsSampled = len(leads.Leads)
	for _, lead := range leads.Leads {
		counts.PipelineEUR += lead.EstimatedValue
	}

	tasks, err := s.tasks.List(ctx, ListParams{Page: 1, Limit: 1})
	if err != nil {
		return nil, errors.Wrap(err, "[Dashboard.Overview] tasks")
	}
	counts.Tasks = tasks.Total

	return counts, nil
}

// ClientLocations returns the clients that carry coordinates, for the map
// view. Pages through the collection up to maxPages pages of 100.
func (s *DashboardService) ClientLocations(ctx context.Context) ([]ClientLocation, error) {
	const maxPages = 10

	var locations []ClientLocation
	for page := 1; page <= maxPages; page++ {
		clients, err := s.clients.List(ctx, ListParams{Page: page, Limit: 100})
		if err != nil {
			return nil, errors.Wrap(err, "[Dashboard.ClientLocations] clients")
		}
		for _, c := range clients.Data {
			if c.Latitude == nil || c.Longitude == nil {
				continue
			}
			locations = append(locations, ClientLocation{
				ClientID:  c.ID,
				Name:      c.Name,
				Latitude:  utils.Value(c.Latitude),
				Longitude: utils.Value(c.Longitude),
			})
		}
		if page >= clients.Pages || len(clients.Data) == 0 {
			break
		}
	}
	return locations, nil
}
