package storefakes

import (
	"sync"

	"github.com/leadline/go-crm-client/credentials"
)

var _ credentials.Store = (*FakeStore)(nil)

// FakeStore is an in-memory credentials.Store for tests. It records every
// mutation so tests can assert on the sequence of token writes.
type FakeStore struct {
	lock    sync.RWMutex
	creds   credentials.Credentials
	History []credentials.Credentials // every Set, in order
	Clears  int
}

func NewFakeStore() *FakeStore {
	return &FakeStore{}
}

// NewFakeStoreWith returns a FakeStore pre-populated with the given pair.
func NewFakeStoreWith(accessToken, refreshToken string) *FakeStore {
	return &FakeStore{creds: credentials.Credentials{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}}
}

func (s *FakeStore) Get() (credentials.Credentials, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.creds, nil
}

func (s *FakeStore) Set(creds credentials.Credentials) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.creds = creds
	s.History = append(s.History, creds)
	return nil
}

func (s *FakeStore) Clear() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.creds = credentials.Credentials{}
	s.Clears++
	return nil
}
