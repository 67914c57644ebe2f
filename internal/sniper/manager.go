package sniper

import (
	"context"
	"fmt"
	"log"
	"sync"

	"transfer-sniper/internal/antiban"
	"transfer-sniper/internal/market"
)

// AccountStatus is one account's view for the admin API
type AccountStatus struct {
	AccountKey string                `json:"account_key"`
	State      State                 `json:"state"`
	Stats      Stats                 `json:"stats"`
	Targets    []SnipeTarget         `json:"targets"`
	Risk       float64               `json:"risk_percentage"`
	Session    *antiban.SessionState `json:"session,omitempty"`
}

// Manager owns one Sniper per account, all sharing a single guard so
// quotas and the global pause apply across the whole fleet.
type Manager struct {
	guard *antiban.Guard
	cfg   Config
	cb    Callbacks

	mu       sync.Mutex
	accounts map[string]*Sniper
}

// NewManager creates an empty fleet around the shared guard
func NewManager(guard *antiban.Guard, cfg Config, cb Callbacks) *Manager {
	return &Manager{
		guard:    guard,
		cfg:      cfg,
		cb:       cb,
		accounts: make(map[string]*Sniper),
	}
}

// Guard exposes the shared guard for handlers and wiring
func (m *Manager) Guard() *antiban.Guard { return m.guard }

// AddAccount registers an account and creates its sniper. The guard
// session is initialized so the account shows up in status output
// before its first request.
func (m *Manager) AddAccount(key string, creds market.Credentials, clientCfg market.ClientConfig) (*Sniper, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.accounts[key]; exists {
		return nil, fmt.Errorf("account %q already registered", key)
	}

	client := market.NewClient(key, creds, m.guard, clientCfg)
	sn := New(client, m.cfg, m.cb)
	m.accounts[key] = sn
	m.guard.InitSession(key)

	log.Printf("[Manager] account registered: %s", key)
	return sn, nil
}

// RemoveAccount stops the account's loop and forgets it
func (m *Manager) RemoveAccount(key string) error {
	m.mu.Lock()
	sn, ok := m.accounts[key]
	if ok {
		delete(m.accounts, key)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("unknown account %q", key)
	}

	sn.Stop()
	m.guard.RemoveSession(key)
	log.Printf("[Manager] account removed: %s", key)
	return nil
}

// Account looks up one sniper by key
func (m *Manager) Account(key string) (*Sniper, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sn, ok := m.accounts[key]
	return sn, ok
}

// Keys returns the registered account keys
func (m *Manager) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.accounts))
	for k := range m.accounts {
		keys = append(keys, k)
	}
	return keys
}

// StartAccount launches one account's loop
func (m *Manager) StartAccount(ctx context.Context, key string) error {
	sn, ok := m.Account(key)
	if !ok {
		return fmt.Errorf("unknown account %q", key)
	}
	sn.Start(ctx)
	return nil
}

// StopAccount halts one account's loop
func (m *Manager) StopAccount(key string) error {
	sn, ok := m.Account(key)
	if !ok {
		return fmt.Errorf("unknown account %q", key)
	}
	sn.Stop()
	return nil
}

// StartAll launches every registered account
func (m *Manager) StartAll(ctx context.Context) {
	for _, key := range m.Keys() {
		if sn, ok := m.Account(key); ok {
			sn.Start(ctx)
		}
	}
}

// StopAll halts every account's loop
func (m *Manager) StopAll() {
	for _, key := range m.Keys() {
		if sn, ok := m.Account(key); ok {
			sn.Stop()
		}
	}
}

// PauseAll suspends every running loop without tearing it down
func (m *Manager) PauseAll() {
	for _, key := range m.Keys() {
		if sn, ok := m.Account(key); ok {
			sn.Pause()
		}
	}
}

// ResumeAll continues every paused loop
func (m *Manager) ResumeAll() {
	for _, key := range m.Keys() {
		if sn, ok := m.Account(key); ok {
			sn.Resume()
		}
	}
}

// Status reports every account: loop state, trade stats and the
// guard's risk view
func (m *Manager) Status() []AccountStatus {
	m.mu.Lock()
	snipers := make(map[string]*Sniper, len(m.accounts))
	for k, sn := range m.accounts {
		snipers[k] = sn
	}
	m.mu.Unlock()

	out := make([]AccountStatus, 0, len(snipers))
	for key, sn := range snipers {
		st := AccountStatus{
			AccountKey: key,
			State:      sn.State(),
			Stats:      sn.Stats(),
			Targets:    sn.Targets(),
			Risk:       m.guard.RiskPercentage(key),
		}
		if session, ok := m.guard.Session(key); ok {
			st.Session = &session
		}
		out = append(out, st)
	}
	return out
}

// SettleAll clears sold items and relists expired auctions on every
// account. Scheduler entry point; per-account failures are logged and
// skipped so one broken session never blocks the rest.
func (m *Manager) SettleAll(ctx context.Context) {
	for _, key := range m.Keys() {
		sn, ok := m.Account(key)
		if !ok || sn.State() == StateStopped || sn.State() == StateError {
			continue
		}
		if err := sn.SettleSales(ctx); err != nil {
			log.Printf("[Manager] %s: settle failed: %v", key, err)
		}
	}
}

// KeepaliveAll refreshes every active account's session
func (m *Manager) KeepaliveAll(ctx context.Context) {
	for _, key := range m.Keys() {
		sn, ok := m.Account(key)
		if !ok || sn.State() == StateStopped || sn.State() == StateError {
			continue
		}
		if err := sn.Keepalive(ctx); err != nil {
			log.Printf("[Manager] %s: keepalive failed: %v", key, err)
		}
	}
}
