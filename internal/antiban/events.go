package antiban

// Listener receives guard notifications. Callbacks run synchronously on
// the goroutine that recorded the event, after the guard lock is
// released, so implementations may call back into the Guard.
type Listener interface {
	// StatsUpdated fires after every recorded outcome with a copy of
	// the account's state
	StatsUpdated(accountKey string, state SessionState)

	// CriticalStop fires when an account hits a forced stop (stop
	// status code or error-streak limit) and needs manual attention
	CriticalStop(accountKey string, reason string)
}

// ListenerFuncs adapts plain functions to the Listener interface.
// Nil fields are skipped.
type ListenerFuncs struct {
	OnStats    func(accountKey string, state SessionState)
	OnCritical func(accountKey string, reason string)
}

func (l ListenerFuncs) StatsUpdated(accountKey string, state SessionState) {
	if l.OnStats != nil {
		l.OnStats(accountKey, state)
	}
}

func (l ListenerFuncs) CriticalStop(accountKey string, reason string) {
	if l.OnCritical != nil {
		l.OnCritical(accountKey, reason)
	}
}

func (g *Guard) notifyStats(accountKey string, state SessionState) {
	for _, l := range g.snapshotListeners() {
		l.StatsUpdated(accountKey, state)
	}
}

func (g *Guard) notifyCritical(accountKey string, reason string) {
	for _, l := range g.snapshotListeners() {
		l.CriticalStop(accountKey, reason)
	}
}

func (g *Guard) snapshotListeners() []Listener {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Listener(nil), g.listeners...)
}
