package client

import "github.com/aretw0/introspection"

// ManagerState exposes session state for observability.
type ManagerState struct {
	Owner       string `json:"owner"`
	Active      int    `json:"active"`
	Trash       int    `json:"trash"`
	Loaded      int    `json:"loaded_folders"`
	TrashLoaded bool   `json:"trash_loaded"`
	Open        string `json:"open,omitempty"`
	Queued      int    `json:"queued_keys"`
}

// State implements introspection.Introspectable.
func (m *Manager) State() any {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := ManagerState{
		Owner:       m.owner,
		Active:      len(m.state.Active),
		Trash:       len(m.state.Trash),
		Loaded:      len(m.state.Loaded),
		TrashLoaded: m.state.TrashLoaded,
		Queued:      m.keys.len(),
	}
	if m.state.Open != nil {
		st.Open = m.state.Open.ID
	}
	return st
}

// ComponentType implements introspection.Component.
func (m *Manager) ComponentType() string {
	return "client"
}

var _ introspection.Introspectable = (*Manager)(nil)
var _ introspection.Component = (*Manager)(nil)
