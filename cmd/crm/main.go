package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"text/tabwriter"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"

	"github.com/leadline/go-crm-client/api"
	"github.com/leadline/go-crm-client/credentials/filestore"
	"github.com/leadline/go-crm-client/crm"
	"github.com/leadline/go-crm-client/guard"
	"github.com/leadline/go-crm-client/internal/config"
	"github.com/leadline/go-crm-client/session"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %s\n", err)
	}
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	if len(os.Args) < 2 {
		displayAppname(c.GetAppName())
		usage()
		return nil
	}

	app, err := newApp(c)
	if err != nil {
		return err
	}
	defer app.sessions.Close()

	ctx := context.Background()
	command, args := os.Args[1], os.Args[2:]

	switch command {
	case "login":
		return app.login(ctx, args)
	case "register":
		return app.register(ctx, args)
	case "logout":
		app.sessions.Logout(ctx)
		fmt.Println("Logged out.")
		return nil
	case "whoami":
		return app.protected(ctx, func() error { return app.whoami() })
	case "dashboard":
		return app.protected(ctx, func() error { return app.showDashboard(ctx) })
	case "clients":
		return app.protected(ctx, func() error { return app.listClients(ctx, args) })
	case "contacts":
		return app.protected(ctx, func() error { return app.listContacts(ctx, args) })
	case "leads":
		return app.protected(ctx, func() error { return app.listLeads(ctx, args) })
	case "tasks":
		return app.protected(ctx, func() error { return app.listTasks(ctx, args) })
	case "help":
		displayAppname(c.GetAppName())
		usage()
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

// app wires the transport, session manager and services together for one
// invocation.
type app struct {
	sessions  *session.Manager
	guard     *guard.Guard
	clients   *crm.ClientsService
	contacts  *crm.ContactsService
	leads     *crm.LeadsService
	tasks     *crm.TasksService
	dashboard *crm.DashboardService
}

func newApp(c config.Config) (*app, error) {
	logger := newLogger(c)
	store := filestore.New(c.GetCredentialsFile())

	// The expiry signal reaches the manager which is built after the
	// transport; bridge the cycle with a late-bound reference.
	var sessions *session.Manager
	apiClient, err := api.New(c.GetAPIBaseURL(), store,
		api.WithHTTPClient(&http.Client{Timeout: c.GetHTTPTimeout()}),
		api.WithLogger(logger),
		api.WithOnAuthExpire(func() {
			if sessions != nil {
				sessions.HandleSessionExpired()
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	navigate := func(route session.Route) {
		if route == session.RouteLogin {
			fmt.Fprintln(os.Stderr, "Session ended. Run 'crm login' to sign in.")
		}
	}
	sessions, err = session.NewManager(session.Deps{
		Auth:        crm.NewAuthService(apiClient),
		Credentials: store,
	}, session.WithNavigator(navigate), session.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	return &app{
		sessions:  sessions,
		guard:     guard.New(sessions, nil),
		clients:   crm.NewClientsService(apiClient),
		contacts:  crm.NewContactsService(apiClient),
		leads:     crm.NewLeadsService(apiClient),
		tasks:     crm.NewTasksService(apiClient),
		dashboard: crm.NewDashboardService(apiClient),
	}, nil
}

// protected bootstraps the session and runs fn only if the route guard
// allows it.
func (a *app) protected(ctx context.Context, fn func() error) error {
	a.sessions.Bootstrap(ctx)
	if a.guard.Check() != guard.Allow {
		return errors.New("not logged in, run 'crm login' first")
	}
	return fn()
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *email == "" {
		*email = prompt("Email: ")
	}
	if *password == "" {
		*password = prompt("Password: ")
	}

	if err := a.sessions.Login(ctx, *email, *password); err != nil {
		var apiErr *api.Error
		if errors.As(err, &apiErr) {
			return fmt.Errorf("login failed: %s", apiErr.Message)
		}
		return err
	}
	user := a.sessions.State().User
	fmt.Printf("Logged in as %s <%s>\n", user.Name, user.Email)
	return nil
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	firstName := fs.String("first", "", "first name")
	lastName := fs.String("last", "", "last name")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	user, err := a.sessions.Register(ctx, *firstName, *lastName, *email, *password)
	if err != nil {
		var apiErr *api.Error
		if errors.As(err, &apiErr) {
			return fmt.Errorf("registration failed: %s", apiErr.Message)
		}
		return err
	}
	fmt.Printf("Account created for %s. Run 'crm login' to sign in.\n", user.Email)
	return nil
}

func (a *app) whoami() error {
	user := a.sessions.State().User
	fmt.Printf("%s <%s> role=%s\n", user.Name, user.Email, user.Role)
	return nil
}

func (a *app) showDashboard(ctx context.Context) error {
	counts, err := a.dashboard.Overview(ctx)
	if err != nil {
		return err
	}
	locations, err := a.dashboard.ClientLocations(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Clients:      %d\n", counts.Clients)
	fmt.Printf("Contacts:     %d\n", counts.Contacts)
	fmt.Printf("Leads:        %d\n", counts.Leads)
	fmt.Printf("Tasks:        %d\n", counts.Tasks)
	fmt.Printf("Pipeline:     %.2f EUR (first %d leads)\n", counts.PipelineEUR, counts.LeadsSampled)
	fmt.Printf("Mapped sites: %d\n", len(locations))
	return nil
}

func (a *app) listClients(ctx context.Context, args []string) error {
	params, err := parseListParams("clients", args)
	if err != nil {
		return err
	}
	page, err := a.clients.List(ctx, params)
	if err != nil {
		return err
	}

	w := newTable()
	fmt.Fprintln(w, "ID\tNAME\tSEGMENT\tPOSTAL")
	for _, c := range page.Data {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ID, c.Name, c.MarketSegment, c.PostalCode)
	}
	w.Flush()
	printFooter(page.Page, page.Pages, page.Total)
	return nil
}

func (a *app) listContacts(ctx context.Context, args []string) error {
	params, err := parseListParams("contacts", args)
	if err != nil {
		return err
	}
	page, err := a.contacts.List(ctx, params)
	if err != nil {
		return err
	}

	w := newTable()
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tPHONE")
	for _, c := range page.Data {
		fmt.Fprintf(w, "%s\t%s %s\t%s\t%s\n", c.ID, c.FirstName, c.LastName, c.Email, c.Phone)
	}
	w.Flush()
	printFooter(page.Page, page.Pages, page.Total)
	return nil
}

func (a *app) listLeads(ctx context.Context, args []string) error {
	params, err := parseListParams("leads", args)
	if err != nil {
		return err
	}
	page, err := a.leads.List(ctx, crm.LeadListParams{ListParams: params})
	if err != nil {
		return err
	}

	w := newTable()
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tVALUE")
	for _, l := range page.Leads {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\n", l.ID, l.Name, l.Status, l.EstimatedValue)
	}
	w.Flush()
	printFooter(page.Page, page.TotalPages, page.Total)
	return nil
}

func (a *app) listTasks(ctx context.Context, args []string) error {
	params, err := parseListParams("tasks", args)
	if err != nil {
		return err
	}
	page, err := a.tasks.List(ctx, params)
	if err != nil {
		return err
	}

	w := newTable()
	fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tDUE")
	for _, t := range page.Data {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, t.Title, t.Status, t.DueDate.Format("2006-01-02"))
	}
	w.Flush()
	printFooter(page.Page, page.Pages, page.Total)
	return nil
}

func parseListParams(name string, args []string) (crm.ListParams, error) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	page := fs.Int("page", 1, "page number")
	limit := fs.Int("limit", 10, "items per page")
	search := fs.String("search", "", "search term")
	if err := fs.Parse(args); err != nil {
		return crm.ListParams{}, err
	}
	return crm.ListParams{Page: *page, Limit: *limit, Search: *search}, nil
}

func newLogger(c config.Config) zerolog.Logger {
	level := zerolog.WarnLevel
	if c.GetEnv() == "DEV" {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
}

func printFooter(page, pages, total int) {
	fmt.Printf("page %d/%d, %d total\n", page, pages, total)
}

func prompt(label string) string {
	fmt.Print(label)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func usage() {
	fmt.Println(`Usage: crm <command> [flags]

Commands:
  login      -email -password        sign in and store the session
  register   -first -last -email -password
  logout                             end the session
  whoami                             show the signed-in profile
  dashboard                          aggregate counts and map totals
  clients    -page -limit -search    list client accounts
  contacts   -page -limit -search    list contacts
  leads      -page -limit -search    list leads
  tasks      -page -limit -search    list tasks`)
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
