// Package catalog owns the durable list of relay credentials and the single
// active-token pointer. All mutations validate first, persist the whole new
// state through the key/value store in one atomic write, and only then update
// the in-memory view, so a storage failure leaves both unchanged.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/relaydeck/relaydeck/internal/core"
	"github.com/relaydeck/relaydeck/internal/kvstore"
)

const (
	tokensKey   = "tokens"
	activeIDKey = "active_token_id"

	// Relay credentials are longer than this; anything shorter is a typo.
	minValueLen = 11
)

// StatsService is the slice of the stats cache the catalog depends on:
// identity resolution during Add (which supplies the stored name) and the
// best-effort summary refresh after activation.
type StatsService interface {
	ResolveTokenAccount(ctx context.Context, tokenValue string) (accountID, accountName string, err error)
	RefreshSummary(ctx context.Context, tokenValue string) (core.AccountSummary, error)
}

type Catalog struct {
	mu       sync.Mutex
	store    kvstore.Store
	stats    StatsService
	tokens   []core.APIToken
	activeID string

	listeners map[int]func()
	nextSub   int

	now   func() time.Time
	newID func() (string, error)
}

// New loads the persisted catalog from store. stats may be nil, in which case
// Add is unavailable (it needs remote identity resolution) but every other
// operation works.
func New(store kvstore.Store, stats StatsService) (*Catalog, error) {
	c := &Catalog{
		store:     store,
		stats:     stats,
		listeners: make(map[int]func()),
		now:       time.Now,
		newID:     newTokenID,
	}
	if err := c.reload(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) reload() error {
	raw, ok, err := c.store.Get(tokensKey)
	if err != nil {
		return fmt.Errorf("%w: loading catalog: %v", core.ErrStorage, err)
	}

	var tokens []core.APIToken
	if ok && strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &tokens); err != nil {
			return fmt.Errorf("%w: parsing catalog: %v", core.ErrStorage, err)
		}
	}

	activeID, _, err := c.store.Get(activeIDKey)
	if err != nil {
		return fmt.Errorf("%w: loading active token id: %v", core.ErrStorage, err)
	}

	c.mu.Lock()
	c.tokens = tokens
	c.activeID = activeID
	c.mu.Unlock()
	return nil
}

// Reload re-reads the persisted state, discarding the in-memory view. Used
// when another process rewrote the store.
func (c *Catalog) Reload() error {
	if err := c.reload(); err != nil {
		return err
	}
	c.notify()
	return nil
}

// WatchStore reloads the catalog whenever another process rewrites the
// backing file. Call Close on the store to stop watching.
func (c *Catalog) WatchStore(fs *kvstore.FileStore) error {
	return fs.Watch(func() {
		if err := c.Reload(); err != nil {
			log.Printf("catalog: reload after external change: %v", err)
		}
	})
}

// Subscribe registers a listener invoked synchronously after each successful
// mutation. The returned function unregisters it.
func (c *Catalog) Subscribe(fn func()) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Catalog) notify() {
	c.mu.Lock()
	fns := make([]func(), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// List returns the tokens in insertion order with IsActive derived from the
// active pointer. The slice and its records are copies.
func (c *Catalog) List() []core.APIToken {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Catalog) snapshotLocked() []core.APIToken {
	activeID := c.effectiveActiveIDLocked()
	out := make([]core.APIToken, len(c.tokens))
	for i, tok := range c.tokens {
		out[i] = tok
		out[i].IsActive = tok.ID == activeID
		if tok.LastUsedAt != nil {
			t := *tok.LastUsedAt
			out[i].LastUsedAt = &t
		}
	}
	return out
}

// effectiveActiveIDLocked applies the first-inserted fallback without ever
// persisting it: the stored pointer stays the single source of truth.
func (c *Catalog) effectiveActiveIDLocked() string {
	if c.activeID != "" {
		for _, tok := range c.tokens {
			if tok.ID == c.activeID {
				return c.activeID
			}
		}
	}
	if len(c.tokens) > 0 {
		return c.tokens[0].ID
	}
	return ""
}

// Active returns the active token, or false when the catalog is empty.
func (c *Catalog) Active() (core.APIToken, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	activeID := c.effectiveActiveIDLocked()
	for _, tok := range c.snapshotLocked() {
		if tok.ID == activeID {
			return tok, true
		}
	}
	return core.APIToken{}, false
}

func (c *Catalog) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tokens)
}

// Add validates the credential, resolves its identity through the stats
// service (the resolved account name becomes the token name), and persists
// it. Remote failures abort the add with nothing written.
func (c *Catalog) Add(ctx context.Context, value string) (core.APIToken, error) {
	if strings.TrimSpace(value) == "" {
		return core.APIToken{}, fmt.Errorf("%w: token value is empty", core.ErrValidation)
	}
	if len(value) < minValueLen {
		return core.APIToken{}, fmt.Errorf("%w: token value must be longer than %d characters", core.ErrValidation, minValueLen-1)
	}

	c.mu.Lock()
	for _, tok := range c.tokens {
		if tok.Value == value {
			c.mu.Unlock()
			return core.APIToken{}, fmt.Errorf("%w: token value already in catalog", core.ErrDuplicate)
		}
	}
	c.mu.Unlock()

	if c.stats == nil {
		return core.APIToken{}, fmt.Errorf("%w: no stats service configured for identity resolution", core.ErrValidation)
	}

	// The stored name comes from the relay, so Add can fail for network
	// reasons, not just validation ones.
	_, accountName, err := c.stats.ResolveTokenAccount(ctx, value)
	if err != nil {
		return core.APIToken{}, err
	}

	id, err := c.newID()
	if err != nil {
		return core.APIToken{}, fmt.Errorf("%w: generating token id: %v", core.ErrStorage, err)
	}

	c.mu.Lock()
	// Re-check under lock: a concurrent Add may have won the race.
	for _, tok := range c.tokens {
		if tok.Value == value {
			c.mu.Unlock()
			return core.APIToken{}, fmt.Errorf("%w: token value already in catalog", core.ErrDuplicate)
		}
	}

	token := core.APIToken{
		ID:        id,
		Name:      c.uniqueNameLocked(accountName),
		Value:     value,
		CreatedAt: c.now().UTC(),
	}

	newTokens := append(append([]core.APIToken(nil), c.tokens...), token)
	newActive := c.activeID
	if len(c.tokens) == 0 {
		newActive = token.ID
	}

	if err := c.persistLocked(newTokens, newActive); err != nil {
		c.mu.Unlock()
		return core.APIToken{}, err
	}
	c.tokens = newTokens
	c.activeID = newActive
	token.IsActive = token.ID == c.effectiveActiveIDLocked()
	c.mu.Unlock()

	c.notify()
	return token, nil
}

// uniqueNameLocked keeps names unique when several credentials resolve to the
// same account: "Dev Key", "Dev Key (2)", ...
func (c *Catalog) uniqueNameLocked(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Unnamed"
	}
	candidate := name
	for n := 2; ; n++ {
		inUse := false
		for _, tok := range c.tokens {
			if tok.Name == candidate {
				inUse = true
				break
			}
		}
		if !inUse {
			return candidate
		}
		candidate = fmt.Sprintf("%s (%d)", name, n)
	}
}

// Remove deletes a token. Removing the active token promotes the first
// remaining token, or clears activity when the catalog empties.
func (c *Catalog) Remove(id string) error {
	c.mu.Lock()

	idx := -1
	for i, tok := range c.tokens {
		if tok.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		c.mu.Unlock()
		return fmt.Errorf("%w: token %s", core.ErrNotFound, id)
	}

	wasActive := c.effectiveActiveIDLocked() == id

	newTokens := make([]core.APIToken, 0, len(c.tokens)-1)
	newTokens = append(newTokens, c.tokens[:idx]...)
	newTokens = append(newTokens, c.tokens[idx+1:]...)

	newActive := c.activeID
	if wasActive || newActive == id {
		if len(newTokens) > 0 {
			newActive = newTokens[0].ID
		} else {
			newActive = ""
		}
	}

	if err := c.persistLocked(newTokens, newActive); err != nil {
		c.mu.Unlock()
		return err
	}
	c.tokens = newTokens
	c.activeID = newActive
	c.mu.Unlock()

	c.notify()
	return nil
}

// SetActive moves the active pointer. A stats refresh for the new token is
// triggered best-effort; its failure does not undo the activation.
func (c *Catalog) SetActive(ctx context.Context, id string) error {
	c.mu.Lock()

	var target *core.APIToken
	for i := range c.tokens {
		if c.tokens[i].ID == id {
			target = &c.tokens[i]
			break
		}
	}
	if target == nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: token %s", core.ErrNotFound, id)
	}

	if err := c.persistLocked(c.tokens, id); err != nil {
		c.mu.Unlock()
		return err
	}
	c.activeID = id
	value := target.Value
	c.mu.Unlock()

	c.notify()

	if c.stats != nil {
		if _, err := c.stats.RefreshSummary(ctx, value); err != nil {
			log.Printf("catalog: stats refresh after activation: %v", err)
		}
	}
	return nil
}

// Rename changes a token's user-facing label. Renaming to the token's current
// name is an idempotent success.
func (c *Catalog) Rename(id, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return fmt.Errorf("%w: token name is empty", core.ErrValidation)
	}

	c.mu.Lock()

	idx := -1
	for i, tok := range c.tokens {
		if tok.ID == id {
			idx = i
		} else if tok.Name == newName {
			c.mu.Unlock()
			return fmt.Errorf("%w: token name %q already in use", core.ErrDuplicate, newName)
		}
	}
	if idx == -1 {
		c.mu.Unlock()
		return fmt.Errorf("%w: token %s", core.ErrNotFound, id)
	}
	if c.tokens[idx].Name == newName {
		c.mu.Unlock()
		return nil
	}

	newTokens := append([]core.APIToken(nil), c.tokens...)
	newTokens[idx].Name = newName

	if err := c.persistLocked(newTokens, c.activeID); err != nil {
		c.mu.Unlock()
		return err
	}
	c.tokens = newTokens
	c.mu.Unlock()

	c.notify()
	return nil
}

// TouchLastUsed stamps the token's last-use time. Unknown ids and persistence
// failures are silently ignored; other records are never affected.
func (c *Catalog) TouchLastUsed(id string) {
	c.mu.Lock()

	idx := -1
	for i, tok := range c.tokens {
		if tok.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		c.mu.Unlock()
		return
	}

	now := c.now().UTC()
	newTokens := append([]core.APIToken(nil), c.tokens...)
	newTokens[idx].LastUsedAt = &now

	if err := c.persistLocked(newTokens, c.activeID); err != nil {
		c.mu.Unlock()
		log.Printf("catalog: persisting last-used stamp: %v", err)
		return
	}
	c.tokens = newTokens
	c.mu.Unlock()

	c.notify()
}

// ClearAll empties the catalog and the active pointer.
func (c *Catalog) ClearAll() error {
	c.mu.Lock()

	if err := c.persistLocked(nil, ""); err != nil {
		c.mu.Unlock()
		return err
	}
	c.tokens = nil
	c.activeID = ""
	c.mu.Unlock()

	c.notify()
	return nil
}

// persistLocked writes the full catalog state as one atomic store operation.
// The caller's in-memory state must not be updated until it succeeds.
func (c *Catalog) persistLocked(tokens []core.APIToken, activeID string) error {
	if tokens == nil {
		tokens = []core.APIToken{}
	}
	raw, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshaling catalog: %v", core.ErrStorage, err)
	}

	put := map[string]string{tokensKey: string(raw)}
	var del []string
	if activeID == "" {
		del = append(del, activeIDKey)
	} else {
		put[activeIDKey] = activeID
	}

	if err := c.store.Apply(put, del); err != nil {
		return fmt.Errorf("%w: persisting catalog: %v", core.ErrStorage, err)
	}
	return nil
}
