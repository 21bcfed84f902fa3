package live

import "time"

const (
	TypeWelcome         = "welcome"
	TypeCatalogUpdated  = "catalog.updated"
	TypeCatalogChanged  = "catalog.changed"
	TypeKPIEvent        = "kpi.event"
	TypeExportCompleted = "export.completed"
)

type Event struct {
	Type string    `json:"type"`
	Data any       `json:"data,omitempty"`
	At   time.Time `json:"at"`
}

func NewEvent(typ string, data any) Event {
	return Event{Type: typ, Data: data, At: time.Now().UTC()}
}

// Publisher is what feature handlers depend on. Hub implements it.
type Publisher interface {
	Publish(Event)
}

type discard struct{}

func (discard) Publish(Event) {}

// Discard drops every event.
var Discard Publisher = discard{}

// OrDiscard returns p, or Discard when p is nil.
func OrDiscard(p Publisher) Publisher {
	if p == nil {
		return Discard
	}
	return p
}
