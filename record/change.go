package record

import "fmt"

// Action is the kind of corrective operation a change performs.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// Change is a single corrective operation converging actual state toward
// desired state. Desired and Actual are nil when absent: a CREATE has no
// actual record, a DELETE has no desired record, an UPDATE has both.
type Change struct {
	Action  Action
	Zone    string
	Key     Key
	Desired *Record
	Actual  *Record
}

// NewCreate returns a CREATE change for a record missing from actual state.
func NewCreate(desired Record) Change {
	d := desired
	return Change{
		Action:  ActionCreate,
		Zone:    desired.Zone,
		Key:     desired.Key(),
		Desired: &d,
	}
}

// NewUpdate returns an UPDATE change replacing actual with desired.
func NewUpdate(desired, actual Record) Change {
	d, a := desired, actual
	return Change{
		Action:  ActionUpdate,
		Zone:    desired.Zone,
		Key:     desired.Key(),
		Desired: &d,
		Actual:  &a,
	}
}

// NewDelete returns a DELETE change for a record absent from desired state.
func NewDelete(actual Record) Change {
	a := actual
	return Change{
		Action:  ActionDelete,
		Zone:    actual.Zone,
		Key:     actual.Key(),
		Actual:  &a,
	}
}

// Validate checks the presence invariants for the change's action.
func (c Change) Validate() error {
	switch c.Action {
	case ActionCreate:
		if c.Desired == nil || c.Actual != nil {
			return fmt.Errorf("CREATE change for %s must have desired and no actual", c.Key)
		}
	case ActionUpdate:
		if c.Desired == nil || c.Actual == nil {
			return fmt.Errorf("UPDATE change for %s must have both desired and actual", c.Key)
		}
		if c.Desired.Equal(*c.Actual) {
			return fmt.Errorf("UPDATE change for %s has equal desired and actual", c.Key)
		}
	case ActionDelete:
		if c.Actual == nil || c.Desired != nil {
			return fmt.Errorf("DELETE change for %s must have actual and no desired", c.Key)
		}
	default:
		return fmt.Errorf("unknown change action %q", c.Action)
	}
	return nil
}

func (c Change) String() string {
	return fmt.Sprintf("%s %s", c.Action, c.Key)
}
