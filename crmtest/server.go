// Package crmtest provides an in-memory fake of the remote CRM API for
// tests. It mints real JWTs with short expiries so token-refresh paths are
// exercised against genuine 401s, and rotates refresh tokens the way the
// production backend does.
package crmtest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/leadline/go-crm-client/crm"
)

type userRecord struct {
	crm.User
	Password string
}

// Server is the fake API. Zero-value fields are tuned for tests: tokens
// last an hour unless TokenTTL is shortened to force refreshes.
type Server struct {
	mu            sync.Mutex
	signingKey    []byte
	users         map[string]*userRecord // by user ID
	refreshTokens map[string]string      // refresh token -> user ID
	router        chi.Router

	// TokenTTL is the lifetime of minted access tokens. Set it negative to
	// mint already-expired tokens.
	TokenTTL time.Duration

	// FailRefresh makes POST /auth/refresh reject every call.
	FailRefresh bool

	// RefreshCalls counts hits on POST /auth/refresh.
	RefreshCalls int

	clients      *collection[crm.Client]
	contacts     *collection[crm.Contact]
	leads        *collection[crm.Lead]
	interactions *collection[crm.Interaction]
	notes        *collection[crm.Note]
	tasks        *collection[crm.Task]
}

// New creates a fake API server. Mount Handler() on an httptest.Server.
func New() *Server {
	s := &Server{
		signingKey:    []byte(uuid.New().String()),
		users:         make(map[string]*userRecord),
		refreshTokens: make(map[string]string),
		TokenTTL:      time.Hour,

		clients: &collection[crm.Client]{
			id:    func(c *crm.Client) *string { return &c.ID },
			name:  func(c *crm.Client) string { return c.Name },
			stamp: func(c *crm.Client, t time.Time) { c.CreatedAt, c.UpdatedAt = t, t },
		},
		contacts: &collection[crm.Contact]{
			id:    func(c *crm.Contact) *string { return &c.ID },
			name:  func(c *crm.Contact) string { return c.LastName },
			stamp: func(c *crm.Contact, t time.Time) { c.CreatedAt, c.UpdatedAt = t, t },
		},
		leads: &collection[crm.Lead]{
			id:    func(l *crm.Lead) *string { return &l.ID },
			name:  func(l *crm.Lead) string { return l.Name },
			stamp: func(l *crm.Lead, t time.Time) { l.CreatedAt, l.UpdatedAt = t, t },
		},
		interactions: &collection[crm.Interaction]{
			id:    func(i *crm.Interaction) *string { return &i.ID },
			name:  func(i *crm.Interaction) string { return i.Description },
			stamp: func(i *crm.Interaction, t time.Time) { i.CreatedAt, i.UpdatedAt = t, t },
		},
		notes: &collection[crm.Note]{
			id:    func(n *crm.Note) *string { return &n.ID },
			name:  func(n *crm.Note) string { return n.Content },
			stamp: func(n *crm.Note, t time.Time) { n.CreatedAt, n.UpdatedAt = t, t },
		},
		tasks: &collection[crm.Task]{
			id:    func(t *crm.Task) *string { return &t.ID },
			name:  func(t *crm.Task) string { return t.Title },
			stamp: func(t *crm.Task, ts time.Time) { t.CreatedAt, t.UpdatedAt = ts, ts },
		},
	}
	s.initRoutes()
	return s
}

// Handler returns the HTTP handler for the fake API.
func (s *Server) Handler() http.Handler {
	return s.router
}

// AddUser seeds a user and returns the created record.
func (s *Server) AddUser(name, email, password string, role crm.UserRole) crm.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC().Truncate(time.Second)
	user := crm.User{
		ID:        uuid.New().String(),
		Name:      name,
		Email:     email,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.users[user.ID] = &userRecord{User: user, Password: password}
	return user
}

// AddClient seeds a client account.
func (s *Server) AddClient(client crm.Client) crm.Client {
	return s.clients.add(client)
}

// AddLead seeds a lead.
func (s *Server) AddLead(lead crm.Lead) crm.Lead {
	return s.leads.add(lead)
}

// AddTask seeds a task.
func (s *Server) AddTask(task crm.Task) crm.Task {
	return s.tasks.add(task)
}

// AddContact seeds a contact.
func (s *Server) AddContact(contact crm.Contact) crm.Contact {
	return s.contacts.add(contact)
}

// IssueTokens mints a token pair for the user, as if they had logged in.
func (s *Server) IssueTokens(userID string) (accessToken, refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueTokensLocked(userID)
}

func (s *Server) issueTokensLocked(userID string) (string, string) {
	claims := jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(s.TokenTTL).Unix(),
		"iat": time.Now().Unix(),
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		panic(err) // cannot happen with HS256 and an in-memory key
	}
	refreshToken := uuid.New().String()
	s.refreshTokens[refreshToken] = userID
	return accessToken, refreshToken
}

func (s *Server) userFromToken(tokenStr string) *userRecord {
	parsed, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return nil
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[sub]
}

func (s *Server) initRoutes() {
	r := chi.NewRouter()

	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/register", s.handleRegister)
	r.Post("/auth/refresh", s.handleRefresh)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Get("/auth/profile", s.handleProfile)
		r.Put("/auth/profile", s.handleUpdateProfile)
		r.Post("/auth/logout", s.handleLogout)

		mountCRUD(r, "/clients", s.clients)
		mountCRUD(r, "/contacts", s.contacts)
		mountCRUD(r, "/interactions", s.interactions)
		mountCRUD(r, "/notes", s.notes)
		mountCRUD(r, "/tasks", s.tasks)
		s.mountLeads(r)
		s.mountUsers(r)

		r.Get("/clients/{id}/contacts", func(w http.ResponseWriter, r *http.Request) {
			clientID := chi.URLParam(r, "id")
			listFiltered(w, r, s.contacts, func(c crm.Contact) bool { return c.ClientID.ID == clientID })
		})
		r.Get("/clients/{id}/notes", func(w http.ResponseWriter, r *http.Request) {
			clientID := chi.URLParam(r, "id")
			listFiltered(w, r, s.notes, func(n crm.Note) bool { return n.ClientID.ID == clientID })
		})
		r.Get("/leads/{id}/interactions", func(w http.ResponseWriter, r *http.Request) {
			leadID := chi.URLParam(r, "id")
			listFiltered(w, r, s.interactions, func(i crm.Interaction) bool { return i.LeadID.ID == leadID })
		})
		r.Get("/interactions/{id}/tasks", func(w http.ResponseWriter, r *http.Request) {
			interactionID := chi.URLParam(r, "id")
			listFiltered(w, r, s.tasks, func(t crm.Task) bool { return t.InteractionID.ID == interactionID })
		})
		r.Get("/users/{id}/tasks", func(w http.ResponseWriter, r *http.Request) {
			userID := chi.URLParam(r, "id")
			listFiltered(w, r, s.tasks, func(t crm.Task) bool { return t.AssignedTo.ID == userID })
		})
		r.Put("/tasks/{id}/complete", func(w http.ResponseWriter, r *http.Request) {
			task, ok := s.tasks.get(chi.URLParam(r, "id"))
			if !ok {
				writeError(w, http.StatusNotFound, "task not found")
				return
			}
			task.Status = crm.TaskCompleted
			s.tasks.put(task)
			writeJSON(w, http.StatusOK, task)
		})
	})

	s.router = r
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		user := s.userFromToken(strings.TrimPrefix(header, "Bearer "))
		if user == nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, withUser(r, user))
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Email == req.Email && user.Password == req.Password {
			access, refresh := s.issueTokensLocked(user.ID)
			writeJSON(w, http.StatusOK, crm.AuthResponse{
				Token:        access,
				RefreshToken: refresh,
				User:         user.User,
			})
			return
		}
	}
	writeError(w, http.StatusUnauthorized, "invalid credentials")
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req crm.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	s.mu.Lock()
	for _, user := range s.users {
		if user.Email == req.Email {
			s.mu.Unlock()
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
	}
	s.mu.Unlock()

	user := s.AddUser(req.FirstName+" "+req.LastName, req.Email, req.Password, crm.RoleSales)
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.RefreshCalls++

	if s.FailRefresh {
		writeError(w, http.StatusUnauthorized, "refresh token expired")
		return
	}
	userID, ok := s.refreshTokens[req.RefreshToken]
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	// Rotation: the presented token is spent.
	delete(s.refreshTokens, req.RefreshToken)
	access, refresh := s.issueTokensLocked(userID)
	writeJSON(w, http.StatusOK, map[string]string{
		"token":        access,
		"refreshToken": refresh,
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userFrom(r).User)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var patch crm.ProfilePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	user := userFrom(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if patch.Name != nil {
		user.Name = *patch.Name
	}
	if patch.Email != nil {
		user.Email = *patch.Email
	}
	user.UpdatedAt = time.Now().UTC().Truncate(time.Second)
	writeJSON(w, http.StatusOK, user.User)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, userID := range s.refreshTokens {
		if userID == user.ID {
			delete(s.refreshTokens, token)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) mountLeads(r chi.Router) {
	r.Get("/leads", func(w http.ResponseWriter, r *http.Request) {
		page, limit := pageParams(r)
		clientID := r.URL.Query().Get("client_id")
		personal := r.URL.Query().Get("personal") == "true"
		requester := userFrom(r)
		items := s.leads.list(r.URL.Query().Get("search"), func(l crm.Lead) bool {
			if clientID != "" && l.ClientID.ID != clientID {
				return false
			}
			if personal && l.UserID.ID != requester.ID {
				return false
			}
			return true
		})
		total := len(items)
		items = paginate(items, page, limit)
		writeJSON(w, http.StatusOK, crm.LeadPage{
			Leads:      items,
			Total:      total,
			Page:       page,
			Limit:      limit,
			TotalPages: pages(total, limit),
		})
	})
	r.Post("/leads", func(w http.ResponseWriter, r *http.Request) { createItem(w, r, s.leads) })
	r.Get("/leads/{id}", func(w http.ResponseWriter, r *http.Request) { getItem(w, r, s.leads) })
	r.Put("/leads/{id}", func(w http.ResponseWriter, r *http.Request) { updateItem(w, r, s.leads) })
	r.Delete("/leads/{id}", func(w http.ResponseWriter, r *http.Request) { deleteItem(w, r, s.leads) })
	r.Put("/leads/{id}/assign", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID string `json:"userId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}
		lead, ok := s.leads.get(chi.URLParam(r, "id"))
		if !ok {
			writeError(w, http.StatusNotFound, "lead not found")
			return
		}
		lead.UserID = crm.UserRef{ID: req.UserID}
		s.leads.put(lead)
		writeJSON(w, http.StatusOK, lead)
	})
}

func (s *Server) mountUsers(r chi.Router) {
	r.Get("/users", func(w http.ResponseWriter, r *http.Request) {
		page, limit := pageParams(r)
		s.mu.Lock()
		users := make([]crm.User, 0, len(s.users))
		for _, u := range s.users {
			users = append(users, u.User)
		}
		s.mu.Unlock()
		total := len(users)
		users = paginate(users, page, limit)
		writeJSON(w, http.StatusOK, crm.Page[crm.User]{
			Data: users, Total: total, Page: page, Limit: limit, Pages: pages(total, limit),
		})
	})
	r.Get("/users/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, userFrom(r).User)
	})
	r.Get("/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		user, ok := s.users[chi.URLParam(r, "id")]
		s.mu.Unlock()
		if !ok {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeJSON(w, http.StatusOK, user.User)
	})
}

func pages(total, limit int) int {
	if limit <= 0 {
		return 1
	}
	return (total + limit - 1) / limit
}

func pageParams(r *http.Request) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	return page, limit
}

func paginate[T any](items []T, page, limit int) []T {
	start := (page - 1) * limit
	if start >= len(items) {
		return nil
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
