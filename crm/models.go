// Package crm provides typed access to the remote CRM API: authentication
// plus the client, contact, lead, interaction, task, note and user
// collections. All services share one api.Client, so every call goes through
// the same token pipeline.
package crm

import (
	"bytes"
	"encoding/json"
	"time"
)

// UserRole is the role assigned to an API user.
type UserRole string

const (
	RoleAdmin UserRole = "admin"
	RoleSales UserRole = "sales"
)

// LeadSource identifies where a lead came from.
type LeadSource string

const (
	SourceWebsite  LeadSource = "website"
	SourceReferral LeadSource = "referral"
	SourceEvent    LeadSource = "event"
	SourceOutbound LeadSource = "outbound"
	SourceInbound  LeadSource = "inbound"
)

// LeadStatus is the pipeline stage of a lead.
type LeadStatus string

const (
	StatusStartToCall      LeadStatus = "Start-to-Call"
	StatusCallToConnect    LeadStatus = "Call-to-Connect"
	StatusConnectToContact LeadStatus = "Connect-to-Contact"
	StatusContactToDemo    LeadStatus = "Contact-to-Demo"
	StatusDemoToClose      LeadStatus = "Demo-to-Close"
	StatusLost             LeadStatus = "Lost"
)

// InteractionType classifies an interaction with a contact.
type InteractionType string

const (
	InteractionCall    InteractionType = "call"
	InteractionEmail   InteractionType = "email"
	InteractionMeeting InteractionType = "meeting"
)

// TaskStatus is the completion state of a task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in progress"
	TaskCompleted  TaskStatus = "completed"
)

// Ref is a reference to another record. The API returns references in two
// shapes depending on the endpoint: the bare ID, or the joined record when
// the server populates it. Both decode into the same field; ID is always
// set, Record only for the populated shape. Marshaling emits the bare ID.
type Ref[T any] struct {
	ID     string
	Record *T
}

func (r *Ref[T]) UnmarshalJSON(data []byte) error {
	*r = Ref[T]{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &r.ID)
	}

	record := new(T)
	if err := json.Unmarshal(data, record); err != nil {
		return err
	}
	var header struct {
		ID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return err
	}
	r.ID = header.ID
	r.Record = record
	return nil
}

func (r Ref[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.ID)
}

// Populated reports whether the joined record came over the wire.
func (r Ref[T]) Populated() bool {
	return r.Record != nil
}

type (
	CompanyRef     = Ref[Company]
	ClientRef      = Ref[Client]
	UserRef        = Ref[User]
	LeadRef        = Ref[Lead]
	InteractionRef = Ref[Interaction]
)

// User is the profile record returned by the API. It is treated as a value:
// replaced wholesale on every successful fetch, never mutated field by
// field.
type User struct {
	ID        string     `json:"_id"`
	CompanyID CompanyRef `json:"company_id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Role      UserRole   `json:"role"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Company is the tenant owning users and client accounts.
type Company struct {
	ID          string    `json:"_id"`
	Name        string    `json:"name"`
	SIREN       string    `json:"SIREN,omitempty"`
	SIRET       string    `json:"SIRET,omitempty"`
	PostalCode  string    `json:"code_postal,omitempty"`
	NAFCode     string    `json:"code_NAF,omitempty"`
	Revenue     *float64  `json:"chiffre_d_affaires,omitempty"`
	EBIT        *float64  `json:"EBIT,omitempty"`
	Latitude    *float64  `json:"latitude,omitempty"`
	Longitude   *float64  `json:"longitude,omitempty"`
	MarketShare *float64  `json:"pdm,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Client is a customer account. Latitude/Longitude feed the map view when
// present.
type Client struct {
	ID            string     `json:"_id"`
	CompanyID     CompanyRef `json:"company_id"`
	Name          string     `json:"name"`
	Description   string     `json:"description,omitempty"`
	MarketSegment string     `json:"marketSegment,omitempty"`
	SIREN         string     `json:"SIREN,omitempty"`
	SIRET         string     `json:"SIRET,omitempty"`
	PostalCode    string     `json:"code_postal,omitempty"`
	NAFCode       string     `json:"code_NAF,omitempty"`
	Revenue       *float64   `json:"chiffre_d_affaires,omitempty"`
	EBIT          *float64   `json:"EBIT,omitempty"`
	Latitude      *float64   `json:"latitude,omitempty"`
	Longitude     *float64   `json:"longitude,omitempty"`
	MarketShare   *float64   `json:"pdm,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Contact is a person attached to a client account.
type Contact struct {
	ID        string    `json:"_id"`
	ClientID  ClientRef `json:"client_id"`
	LastName  string    `json:"name"`
	FirstName string    `json:"prenom"`
	Email     string    `json:"email"`
	Phone     string    `json:"telephone,omitempty"`
	JobTitle  string    `json:"fonction,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Lead is a sales opportunity on a client account.
type Lead struct {
	ID             string     `json:"_id"`
	UserID         UserRef    `json:"user_id"`
	ClientID       ClientRef  `json:"client_id"`
	Name           string     `json:"name"`
	Source         LeadSource `json:"source"`
	Status         LeadStatus `json:"statut"`
	EstimatedValue float64    `json:"valeur_estimee"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Interaction is a recorded touchpoint on a lead.
type Interaction struct {
	ID          string          `json:"_id"`
	LeadID      LeadRef         `json:"lead_id"`
	Date        time.Time       `json:"date_interaction"`
	Type        InteractionType `json:"type_interaction"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Note is free-form text attached to a client account.
type Note struct {
	ID        string    `json:"_id"`
	ClientID  ClientRef `json:"client_id"`
	Content   string    `json:"contenu"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Task is a follow-up action attached to an interaction.
type Task struct {
	ID            string         `json:"_id"`
	InteractionID InteractionRef `json:"interaction_id"`
	Title         string         `json:"titre"`
	Description   string         `json:"description,omitempty"`
	Status        TaskStatus     `json:"statut"`
	DueDate       time.Time      `json:"due_date"`
	AssignedTo    UserRef        `json:"assigned_to"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// Page is the standard paginated list envelope used by most collections.
type Page[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

// LeadPage is the lead collection's envelope, which diverges from Page on
// the wire ("leads" and "totalPages" instead of "data" and "pages").
type LeadPage struct {
	Leads      []Lead `json:"leads"`
	Total      int    `json:"total"`
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
	TotalPages int    `json:"totalPages"`
}
