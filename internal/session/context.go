// Package session holds per-user conversation state between turns.
package session

import (
	"encoding/json"
	"fmt"

	"github.com/johpaz/smart-calendar-assistant/internal/domain"
)

// Action is the externally visible "what are we waiting for" marker.
type Action string

const (
	ActionNone          Action = "none"
	ActionQuery         Action = "query"
	ActionCreate        Action = "create"
	ActionUpdate        Action = "update"
	ActionDelete        Action = "delete"
	ActionConfirmCreate Action = "confirm-create"
	ActionConfirmUpdate Action = "confirm-update"
	ActionConfirmDelete Action = "confirm-delete"
)

// Kind identifies a flow variant in the serialized envelope.
type Kind string

const (
	KindQuery  Kind = "query"
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Flow is an in-progress multi-turn operation. The concrete types are
// *QueryFlow, *CreateFlow, *UpdateFlow and *DeleteFlow.
type Flow interface {
	Kind() Kind
	Pending() Action
}

// Context is the conversation state of one user. A nil Flow means idle.
type Context struct {
	Greeted bool
	Flow    Flow
}

// PendingAction reports what the next message will be interpreted as.
func (c Context) PendingAction() Action {
	if c.Flow == nil {
		return ActionNone
	}
	return c.Flow.Pending()
}

// QueryFlow waits for a date or date range.
type QueryFlow struct {
	Attempts int `json:"attempts"`
}

func (*QueryFlow) Kind() Kind      { return KindQuery }
func (*QueryFlow) Pending() Action { return ActionQuery }

// CreateFlow fills name, date, start time and duration in that order, then
// waits for confirmation.
type CreateFlow struct {
	Name           string        `json:"name,omitempty"`
	Date           *domain.Date  `json:"date,omitempty"`
	Start          *domain.Clock `json:"start_time,omitempty"`
	DurationHours  int           `json:"duration_hours,omitempty"`
	ShorthandTried bool          `json:"shorthand_tried,omitempty"`
	Attempts       int           `json:"attempts"`
}

func (*CreateFlow) Kind() Kind { return KindCreate }

// Pending is confirm-create once every slot is filled.
func (f *CreateFlow) Pending() Action {
	if f.Complete() {
		return ActionConfirmCreate
	}
	return ActionCreate
}

// Complete reports whether all slots are filled.
func (f *CreateFlow) Complete() bool {
	return f.Name != "" && f.Date != nil && f.Start != nil && f.DurationHours > 0
}

// End returns start + duration without day rollover.
func (f *CreateFlow) End() domain.Clock {
	if f.Start == nil {
		return domain.Clock{}
	}
	return f.Start.AddHours(f.DurationHours)
}

// NewEvent converts the filled slots into a store input.
func (f *CreateFlow) NewEvent() domain.NewEvent {
	ev := domain.NewEvent{Name: f.Name, End: f.End()}
	if f.Date != nil {
		ev.Date = *f.Date
	}
	if f.Start != nil {
		ev.Start = *f.Start
	}
	return ev
}

// Step is a phase of the search/select/act flows.
type Step string

const (
	StepSearch  Step = "search"
	StepSelect  Step = "select"
	StepFields  Step = "fields"
	StepConfirm Step = "confirm"
)

// Field is an editable event attribute, walked in FieldOrder.
type Field string

const (
	FieldName  Field = "name"
	FieldDate  Field = "date"
	FieldStart Field = "start_time"
	FieldEnd   Field = "end_time"
)

// FieldOrder is the order the update flow offers fields in.
var FieldOrder = []Field{FieldName, FieldDate, FieldStart, FieldEnd}

// UpdateFlow searches for an event, lets the user pick one, walks each field
// and confirms the diff.
type UpdateFlow struct {
	Step          Step              `json:"step"`
	Candidates    []domain.Event    `json:"candidates,omitempty"`
	Selected      *domain.Event     `json:"selected,omitempty"`
	FieldIndex    int               `json:"field_index"`
	AwaitingValue bool              `json:"awaiting_value,omitempty"`
	Changes       domain.EventPatch `json:"changes"`
	Attempts      int               `json:"attempts"`
}

func (*UpdateFlow) Kind() Kind { return KindUpdate }

// Pending is confirm-update once every field has been visited.
func (f *UpdateFlow) Pending() Action {
	if f.Step == StepConfirm {
		return ActionConfirmUpdate
	}
	return ActionUpdate
}

// CurrentField returns the field being edited, or "" when past the last one.
func (f *UpdateFlow) CurrentField() Field {
	if f.FieldIndex < 0 || f.FieldIndex >= len(FieldOrder) {
		return ""
	}
	return FieldOrder[f.FieldIndex]
}

// DeleteFlow searches for an event, lets the user pick one and confirms.
type DeleteFlow struct {
	Step       Step           `json:"step"`
	Candidates []domain.Event `json:"candidates,omitempty"`
	Selected   *domain.Event  `json:"selected,omitempty"`
	Attempts   int            `json:"attempts"`
}

func (*DeleteFlow) Kind() Kind { return KindDelete }

// Pending is confirm-delete once an event is selected.
func (f *DeleteFlow) Pending() Action {
	if f.Step == StepConfirm {
		return ActionConfirmDelete
	}
	return ActionDelete
}

// FindCandidate returns the candidate with the given id.
func FindCandidate(candidates []domain.Event, id int64) (domain.Event, bool) {
	for _, c := range candidates {
		if c.ID == id {
			return c, true
		}
	}
	return domain.Event{}, false
}

type envelope struct {
	Greeted bool        `json:"greeted"`
	Flow    *flowRecord `json:"flow,omitempty"`
}

type flowRecord struct {
	Kind  Kind            `json:"kind"`
	State json.RawMessage `json:"state"`
}

// MarshalJSON encodes the flow as a kind-tagged envelope.
func (c Context) MarshalJSON() ([]byte, error) {
	env := envelope{Greeted: c.Greeted}
	if c.Flow != nil {
		state, err := json.Marshal(c.Flow)
		if err != nil {
			return nil, fmt.Errorf("marshal %s flow: %w", c.Flow.Kind(), err)
		}
		env.Flow = &flowRecord{Kind: c.Flow.Kind(), State: state}
	}
	return json.Marshal(env)
}

// UnmarshalJSON decodes the envelope written by MarshalJSON.
func (c *Context) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode session envelope: %w", err)
	}
	c.Greeted = env.Greeted
	c.Flow = nil
	if env.Flow == nil {
		return nil
	}

	var flow Flow
	switch env.Flow.Kind {
	case KindQuery:
		flow = &QueryFlow{}
	case KindCreate:
		flow = &CreateFlow{}
	case KindUpdate:
		flow = &UpdateFlow{}
	case KindDelete:
		flow = &DeleteFlow{}
	default:
		return fmt.Errorf("unknown flow kind %q", env.Flow.Kind)
	}
	if err := json.Unmarshal(env.Flow.State, flow); err != nil {
		return fmt.Errorf("decode %s flow: %w", env.Flow.Kind, err)
	}
	c.Flow = flow
	return nil
}
