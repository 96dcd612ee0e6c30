package entity

import "time"

// Snapshot is a point-in-time copy of an entity for hosts and API readers.
type Snapshot struct {
	UniqueID       string         `json:"unique_id"`
	EntityID       string         `json:"entity_id"`
	DeviceID       string         `json:"device_id"`
	Domain         string         `json:"domain"`
	Platform       string         `json:"platform"`
	Name           string         `json:"name"`
	TranslationKey string         `json:"translation_key"`
	Icon           string         `json:"icon,omitempty"`
	Category       string         `json:"entity_category,omitempty"`
	Available      bool           `json:"available"`
	Phase          string         `json:"phase"`
	State          any            `json:"state"`
	Unit           string         `json:"unit_of_measurement,omitempty"`
	Attributes     map[string]any `json:"attributes"`
	ListenAttrs    []string       `json:"listen_attrs"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Snapshot copies the entity's current state.
func (e *Entity) Snapshot() Snapshot {
	listen := e.ListenAttrs()

	e.mu.RLock()
	defer e.mu.RUnlock()
	return Snapshot{
		UniqueID:       e.uniqueID,
		EntityID:       e.entityID,
		DeviceID:       e.dev.UniqueID,
		Domain:         e.conv.Domain,
		Platform:       e.Platform(),
		Name:           e.Name(),
		TranslationKey: e.translationKey,
		Icon:           e.icon,
		Category:       e.category,
		Available:      e.available,
		Phase:          e.phase.String(),
		State:          e.state.Value,
		Unit:           e.state.Unit,
		Attributes:     copyMap(e.state.Attributes),
		ListenAttrs:    listen,
		Timestamp:      time.Now().UTC(),
	}
}
