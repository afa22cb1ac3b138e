package smartnpc

import "fmt"

// BehaviorType is the wire type of a behavior.
type BehaviorType string

const (
	BehaviorAction     BehaviorType = "action"
	BehaviorGesture    BehaviorType = "gesture"
	BehaviorExpression BehaviorType = "expression"
)

// GesturePrefix namespaces gesture names in host animation systems.
const GesturePrefix = "SmartNPC"

// Behavior is one of Action, Gesture or Expression.
type Behavior interface {
	Type() BehaviorType
	behavior()
}

// Action asks the character to perform a named action, optionally on a
// target.
type Action struct {
	Name   string
	Target string
}

// Gesture asks the character to play a named gesture.
type Gesture struct {
	Name string
}

// Expression moves the character's facial expression. Current applies while
// speaking and Next once the response is over.
type Expression struct {
	Previous string
	Current  string
	Next     string
}

func (Action) Type() BehaviorType     { return BehaviorAction }
func (Gesture) Type() BehaviorType    { return BehaviorGesture }
func (Expression) Type() BehaviorType { return BehaviorExpression }

func (Action) behavior()     {}
func (Gesture) behavior()    {}
func (Expression) behavior() {}

// StateName is the gesture's name qualified with GesturePrefix.
func (g Gesture) StateName() string {
	return GesturePrefix + g.Name
}

// ParseBehavior converts a wire behavior into its typed form. Failures wrap
// ErrInvalidBehavior; callers log and drop them.
func ParseBehavior(raw RawBehavior) (Behavior, error) {
	switch BehaviorType(raw.Type) {
	case BehaviorAction:
		if len(raw.Args) < 1 || raw.Args[0] == "" {
			return nil, fmt.Errorf("%w: action needs a name", ErrInvalidBehavior)
		}
		a := Action{Name: raw.Args[0]}
		if len(raw.Args) > 1 {
			a.Target = raw.Args[1]
		}
		return a, nil
	case BehaviorGesture:
		if len(raw.Args) < 1 || raw.Args[0] == "" {
			return nil, fmt.Errorf("%w: gesture needs a name", ErrInvalidBehavior)
		}
		return Gesture{Name: raw.Args[0]}, nil
	case BehaviorExpression:
		if len(raw.Args) < 3 {
			return nil, fmt.Errorf("%w: expression needs 3 args, got %d", ErrInvalidBehavior, len(raw.Args))
		}
		return Expression{Previous: raw.Args[0], Current: raw.Args[1], Next: raw.Args[2]}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidBehavior, raw.Type)
	}
}

// ParseBehaviors parses every raw behavior, dropping invalid ones. It
// returns the parsed behaviors and the parse errors.
func ParseBehaviors(raws []RawBehavior) ([]Behavior, []error) {
	var (
		out  []Behavior
		errs []error
	)
	for _, raw := range raws {
		b, err := ParseBehavior(raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, b)
	}
	return out, errs
}

// Raw converts b back to its wire form.
func Raw(b Behavior) RawBehavior {
	switch v := b.(type) {
	case Action:
		args := []string{v.Name}
		if v.Target != "" {
			args = append(args, v.Target)
		}
		return RawBehavior{Type: string(BehaviorAction), Args: args}
	case Gesture:
		return RawBehavior{Type: string(BehaviorGesture), Args: []string{v.Name}}
	case Expression:
		return RawBehavior{Type: string(BehaviorExpression), Args: []string{v.Previous, v.Current, v.Next}}
	default:
		panic(fmt.Sprintf("smartnpc: unknown behavior %T", b))
	}
}
