package crmtest

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/leadline/go-crm-client/crm"
)

type contextKey int

const userContextKey contextKey = iota

func withUser(r *http.Request, user *userRecord) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), userContextKey, user))
}

func userFrom(r *http.Request) *userRecord {
	user, _ := r.Context().Value(userContextKey).(*userRecord)
	return user
}

// collection is an ordered in-memory entity store. The accessor funcs tell
// the generic CRUD handlers where the ID, search field, and timestamps live
// on each entity type.
type collection[T any] struct {
	mu    sync.Mutex
	items []T
	id    func(*T) *string
	name  func(*T) string
	stamp func(*T, time.Time)
}

func (c *collection[T]) add(item T) T {
	c.mu.Lock()
	defer c.mu.Unlock()
	if *c.id(&item) == "" {
		*c.id(&item) = uuid.New().String()
	}
	c.stamp(&item, time.Now().UTC().Truncate(time.Second))
	c.items = append(c.items, item)
	return item
}

func (c *collection[T]) get(id string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, item := range c.items {
		if *c.id(&item) == id {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// put replaces the item with the same ID.
func (c *collection[T]) put(item T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if *c.id(&c.items[i]) == *c.id(&item) {
			c.items[i] = item
			return
		}
	}
}

func (c *collection[T]) remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if *c.id(&c.items[i]) == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return true
		}
	}
	return false
}

// list returns items matching the search term and the extra filter, in
// insertion order.
func (c *collection[T]) list(search string, filter func(T) bool) []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	matched := make([]T, 0, len(c.items))
	for _, item := range c.items {
		if search != "" && !strings.Contains(strings.ToLower(c.name(&item)), strings.ToLower(search)) {
			continue
		}
		if filter != nil && !filter(item) {
			continue
		}
		matched = append(matched, item)
	}
	return matched
}

// mountCRUD registers the standard list/get/create/update/delete routes for
// a collection under prefix.
func mountCRUD[T any](r chi.Router, prefix string, col *collection[T]) {
	r.Get(prefix, func(w http.ResponseWriter, r *http.Request) {
		listFiltered(w, r, col, nil)
	})
	r.Post(prefix, func(w http.ResponseWriter, r *http.Request) { createItem(w, r, col) })
	r.Get(prefix+"/{id}", func(w http.ResponseWriter, r *http.Request) { getItem(w, r, col) })
	r.Put(prefix+"/{id}", func(w http.ResponseWriter, r *http.Request) { updateItem(w, r, col) })
	r.Delete(prefix+"/{id}", func(w http.ResponseWriter, r *http.Request) { deleteItem(w, r, col) })
}

func listFiltered[T any](w http.ResponseWriter, r *http.Request, col *collection[T], filter func(T) bool) {
	page, limit := pageParams(r)
	items := col.list(r.URL.Query().Get("search"), filter)
	total := len(items)
	items = paginate(items, page, limit)
	writeJSON(w, http.StatusOK, crm.Page[T]{
		Data:  items,
		Total: total,
		Page:  page,
		Limit: limit,
		Pages: pages(total, limit),
	})
}

func createItem[T any](w http.ResponseWriter, r *http.Request, col *collection[T]) {
	var item T
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	writeJSON(w, http.StatusCreated, col.add(item))
}

func getItem[T any](w http.ResponseWriter, r *http.Request, col *collection[T]) {
	item, ok := col.get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func updateItem[T any](w http.ResponseWriter, r *http.Request, col *collection[T]) {
	item, ok := col.get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	col.put(item)
	writeJSON(w, http.StatusOK, item)
}

func deleteItem[T any](w http.ResponseWriter, r *http.Request, col *collection[T]) {
	if !col.remove(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
