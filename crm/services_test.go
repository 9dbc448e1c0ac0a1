package crm_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadline/go-crm-client/api"
	"github.com/leadline/go-crm-client/credentials"
	"github.com/leadline/go-crm-client/credentials/storefakes"
	"github.com/leadline/go-crm-client/crm"
	"github.com/leadline/go-crm-client/crmtest"
	"github.com/leadline/go-crm-client/internal/utils"
)

type testFixture struct {
	backend *crmtest.Server
	api     *api.Client
	user    crm.User
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	backend := crmtest.New()
	user := backend.AddUser("Jane Doe", "jane.doe@example.com", "password123", crm.RoleAdmin)

	ts := httptest.NewServer(backend.Handler())
	t.Cleanup(ts.Close)

	access, refresh := backend.IssueTokens(user.ID)
	store := storefakes.NewFakeStore()
	require.NoError(t, store.Set(credentials.Credentials{AccessToken: access, RefreshToken: refresh}))

	apiClient, err := api.New(ts.URL, store)
	require.NoError(t, err)

	return &testFixture{backend: backend, api: apiClient, user: user}
}

func TestClientsCRUD(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	clients := crm.NewClientsService(f.api)

	created, err := clients.Create(ctx, crm.CreateClientRequest{
		Name:          "Acme SA",
		MarketSegment: "manufacturing",
		PostalCode:    "75002",
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "Acme SA", created.Name)

	got, err := clients.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	updated, err := clients.Update(ctx, created.ID, crm.CreateClientRequest{Description: "key account"})
	require.NoError(t, err)
	assert.Equal(t, "key account", updated.Description)
	assert.Equal(t, "Acme SA", updated.Name, "partial update leaves other fields alone")

	require.NoError(t, clients.Delete(ctx, created.ID))

	_, err = clients.Get(ctx, created.ID)
	assert.True(t, api.IsStatus(err, http.StatusNotFound))
}

func TestClientsListPaginationAndSearch(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	clients := crm.NewClientsService(f.api)

	names := []string{"Acme SA", "Acme Nord", "Globex", "Initech", "Umbrella"}
	for _, name := range names {
		f.backend.AddClient(crm.Client{Name: name})
	}

	page, err := clients.List(ctx, crm.ListParams{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Data, 2)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.Pages)

	last, err := clients.List(ctx, crm.ListParams{Page: 3, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, last.Data, 1)

	found, err := clients.List(ctx, crm.ListParams{Page: 1, Limit: 10, Search: "acme"})
	require.NoError(t, err)
	assert.Len(t, found.Data, 2)
	assert.Equal(t, 2, found.Total)
}

func TestClientSubresources(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	clients := crm.NewClientsService(f.api)

	acme := f.backend.AddClient(crm.Client{Name: "Acme SA"})
	other := f.backend.AddClient(crm.Client{Name: "Globex"})
	f.backend.AddContact(crm.Contact{ClientID: crm.ClientRef{ID: acme.ID}, FirstName: "Marie", LastName: "Dupont", Email: "marie@acme.example"})
	f.backend.AddContact(crm.Contact{ClientID: crm.ClientRef{ID: other.ID}, FirstName: "Paul", LastName: "Martin", Email: "paul@globex.example"})

	contacts, err := clients.Contacts(ctx, acme.ID, crm.ListParams{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, contacts.Data, 1)
	assert.Equal(t, "Dupont", contacts.Data[0].LastName)

	notes := crm.NewNotesService(f.api)
	_, err = notes.Create(ctx, crm.CreateNoteRequest{ClientID: acme.ID, Content: "called about renewal"})
	require.NoError(t, err)

	clientNotes, err := clients.Notes(ctx, acme.ID, crm.ListParams{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, clientNotes.Data, 1)
	assert.Equal(t, "called about renewal", clientNotes.Data[0].Content)
}

func TestLeadsFilterAndAssign(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	leads := crm.NewLeadsService(f.api)

	acme := f.backend.AddClient(crm.Client{Name: "Acme SA"})
	globex := f.backend.AddClient(crm.Client{Name: "Globex"})
	lead := f.backend.AddLead(crm.Lead{ClientID: crm.ClientRef{ID: acme.ID}, Name: "Acme renewal", Source: crm.SourceReferral, Status: crm.StatusStartToCall, EstimatedValue: 5000})
	f.backend.AddLead(crm.Lead{ClientID: crm.ClientRef{ID: globex.ID}, Name: "Globex pilot", Source: crm.SourceWebsite, Status: crm.StatusDemoToClose, EstimatedValue: 12000})

	page, err := leads.List(ctx, crm.LeadListParams{
		ListParams: crm.ListParams{Page: 1, Limit: 10},
		ClientID:   acme.ID,
	})
	require.NoError(t, err)
	require.Len(t, page.Leads, 1)
	assert.Equal(t, "Acme renewal", page.Leads[0].Name)
	assert.Equal(t, 1, page.Total)

	assigned, err := leads.Assign(ctx, lead.ID, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, assigned.UserID.ID)
}

func TestLeadsPersonalFilter(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	leads := crm.NewLeadsService(f.api)

	colleague := f.backend.AddUser("John Roe", "john.roe@example.com", "password123", crm.RoleSales)
	f.backend.AddLead(crm.Lead{ClientID: crm.ClientRef{ID: "c1"}, Name: "mine", UserID: crm.UserRef{ID: f.user.ID}})
	f.backend.AddLead(crm.Lead{ClientID: crm.ClientRef{ID: "c1"}, Name: "theirs", UserID: crm.UserRef{ID: colleague.ID}})
	f.backend.AddLead(crm.Lead{ClientID: crm.ClientRef{ID: "c2"}, Name: "unassigned"})

	page, err := leads.List(ctx, crm.LeadListParams{
		ListParams: crm.ListParams{Page: 1, Limit: 10},
		Personal:   true,
	})
	require.NoError(t, err)
	require.Len(t, page.Leads, 1, "only leads assigned to the requesting user")
	assert.Equal(t, "mine", page.Leads[0].Name)
	assert.Equal(t, 1, page.Total)

	all, err := leads.List(ctx, crm.LeadListParams{ListParams: crm.ListParams{Page: 1, Limit: 10}})
	require.NoError(t, err)
	assert.Len(t, all.Leads, 3)
}

func TestTasksByInteractionAndComplete(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	tasks := crm.NewTasksService(f.api)

	task := f.backend.AddTask(crm.Task{InteractionID: crm.InteractionRef{ID: "int-1"}, Title: "send quote", Status: crm.TaskPending, AssignedTo: crm.UserRef{ID: f.user.ID}})
	f.backend.AddTask(crm.Task{InteractionID: crm.InteractionRef{ID: "int-2"}, Title: "book demo", Status: crm.TaskPending, AssignedTo: crm.UserRef{ID: "someone-else"}})

	byInteraction, err := tasks.ByInteraction(ctx, "int-1", crm.ListParams{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, byInteraction.Data, 1)
	assert.Equal(t, "send quote", byInteraction.Data[0].Title)

	byUser, err := tasks.ByUser(ctx, f.user.ID, crm.ListParams{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, byUser.Data, 1)

	completed, err := tasks.Complete(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, crm.TaskCompleted, completed.Status)
}

func TestInteractionsByLead(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	leads := crm.NewLeadsService(f.api)
	interactions := crm.NewInteractionsService(f.api)

	lead := f.backend.AddLead(crm.Lead{ClientID: crm.ClientRef{ID: "c1"}, Name: "Acme renewal"})
	created, err := interactions.Create(ctx, crm.CreateInteractionRequest{
		LeadID:      lead.ID,
		Type:        crm.InteractionCall,
		Description: "intro call",
	})
	require.NoError(t, err)
	assert.Equal(t, crm.InteractionCall, created.Type)

	page, err := leads.Interactions(ctx, lead.ID, crm.ListParams{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "intro call", page.Data[0].Description)
}

func TestUsersMe(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	users := crm.NewUsersService(f.api)

	me, err := users.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, me.ID)
	assert.Equal(t, crm.RoleAdmin, me.Role)

	page, err := users.List(ctx, crm.ListParams{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestDashboardOverviewAndLocations(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	dashboard := crm.NewDashboardService(f.api)

	f.backend.AddClient(crm.Client{Name: "Acme SA", Latitude: utils.Ptr(48.8566), Longitude: utils.Ptr(2.3522)})
	f.backend.AddClient(crm.Client{Name: "Globex"}) // no coordinates, excluded from the map
	f.backend.AddContact(crm.Contact{ClientID: crm.ClientRef{ID: "c1"}, FirstName: "Marie", LastName: "Dupont"})
	f.backend.AddLead(crm.Lead{ClientID: crm.ClientRef{ID: "c1"}, Name: "Acme renewal", EstimatedValue: 5000})
	f.backend.AddLead(crm.Lead{ClientID: crm.ClientRef{ID: "c2"}, Name: "Globex pilot", EstimatedValue: 12000})
	f.backend.AddTask(crm.Task{InteractionID: crm.InteractionRef{ID: "int-1"}, Title: "send quote"})

	counts, err := dashboard.Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Clients)
	assert.Equal(t, 1, counts.Contacts)
	assert.Equal(t, 2, counts.Leads)
	assert.Equal(t, 1, counts.Tasks)
	assert.Equal(t, 2, counts.LeadsSampled)
	assert.InDelta(t, 17000, counts.PipelineEUR, 0.001)

	locations, err := dashboard.ClientLocations(ctx)
	require.NoError(t, err)
	require.Len(t, locations, 1)
	assert.Equal(t, "Acme SA", locations[0].Name)
	assert.InDelta(t, 48.8566, locations[0].Latitude, 0.0001)
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	backend := crmtest.New()
	ts := httptest.NewServer(backend.Handler())
	t.Cleanup(ts.Close)

	apiClient, err := api.New(ts.URL, storefakes.NewFakeStore())
	require.NoError(t, err)

	_, err = crm.NewClientsService(apiClient).List(context.Background(), crm.ListParams{})
	assert.True(t, api.IsStatus(err, http.StatusUnauthorized))
}
