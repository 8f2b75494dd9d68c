// Package contacts keeps recently paid recipients, most recent first.
package contacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sipeed/monopay/pkg/logger"
	"github.com/sipeed/monopay/pkg/securestore"
)

const DefaultFrequent = 5

type Contact struct {
	Address  string    `json:"address"`
	Name     string    `json:"name"`
	LastPaid time.Time `json:"last_paid"`
}

type Book struct {
	mu      sync.RWMutex
	store   securestore.Store
	entries []Contact
	now     func() time.Time
}

// Open loads the persisted book. A missing record is an empty book.
func Open(ctx context.Context, store securestore.Store) (*Book, error) {
	b := &Book{store: store, now: time.Now}
	raw, err := store.Get(ctx, securestore.KeyContacts)
	if err != nil {
		if errors.Is(err, securestore.ErrNotFound) {
			return b, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(raw, &b.entries); err != nil {
		logger.WarnCF("contacts", "Discarding unreadable contact list", map[string]any{
			"error": err.Error(),
		})
		b.entries = nil
	}
	return b, nil
}

// Save records a payment to address, moving it to the front. An empty name
// keeps the previously saved one.
func (b *Book) Save(ctx context.Context, address, name string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return errors.New("contact address is empty")
	}
	name = strings.TrimSpace(name)

	b.mu.Lock()
	defer b.mu.Unlock()

	next := make([]Contact, 0, len(b.entries)+1)
	entry := Contact{Address: address, Name: name, LastPaid: b.now().UTC()}
	for _, c := range b.entries {
		if c.Address == address {
			if entry.Name == "" {
				entry.Name = c.Name
			}
			continue
		}
		next = append(next, c)
	}
	next = append([]Contact{entry}, next...)

	raw, err := json.Marshal(next)
	if err != nil {
		return err
	}
	if err := b.store.Set(ctx, securestore.KeyContacts, raw); err != nil {
		return fmt.Errorf("failed to save contacts: %w", err)
	}
	b.entries = next
	return nil
}

func (b *Book) SavedName(address string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, c := range b.entries {
		if c.Address == address && c.Name != "" {
			return c.Name, true
		}
	}
	return "", false
}

// Name returns the saved name, or the shortened address.
func (b *Book) Name(address string) string {
	if name, ok := b.SavedName(address); ok {
		return name
	}
	return logger.ShortAddress(address)
}

// Frequent returns up to n contacts, most recently paid first. n <= 0 means DefaultFrequent.
func (b *Book) Frequent(n int) []Contact {
	if n <= 0 {
		n = DefaultFrequent
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n > len(b.entries) {
		n = len(b.entries)
	}
	return append([]Contact(nil), b.entries[:n]...)
}

func (b *Book) All() []Contact {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Contact(nil), b.entries...)
}
