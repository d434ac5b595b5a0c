// Package script runs a [config.Script] against a fresh store and records
// which subscriptions were notified at each step.
//
// It is the engine behind the statestore run command and a convenient way
// to exercise the notification rules from a file:
//
//	cfg, err := config.Load("script.yaml")
//	if err != nil {
//	    return err
//	}
//	report, err := script.Run(cfg)
//	if err != nil {
//	    return err
//	}
//	for _, n := range report.Notifications {
//	    fmt.Println(n.Step, n.Subscription)
//	}
package script

import (
	"fmt"

	"github.com/ohler55/ojg/jp"

	"github.com/jpalmerr/statestore"
	"github.com/jpalmerr/statestore/config"
)

// Notification is one listener call observed while running a script.
type Notification struct {
	// Subscription is the name of the notified subscription.
	Subscription string `json:"subscription"`

	// Step is the 0-based index of the step that triggered the call.
	Step int `json:"step"`

	NewState map[string]any `json:"new_state"`
	OldState map[string]any `json:"old_state"`
}

// Report is the outcome of [Run].
type Report struct {
	StoreID       string         `json:"store_id"`
	State         map[string]any `json:"state"`
	Data          map[string]any `json:"data"`
	Notifications []Notification `json:"notifications"`
}

// NewStore creates a store seeded with the script's initial state and data.
// Subscriptions and steps are not applied.
func NewStore(cfg *config.Script, opts ...statestore.Option) (*statestore.Store[string], error) {
	st, err := statestore.New(statestore.State[string](cfg.State), statestore.Data(cfg.Data), opts...)
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}
	return st, nil
}

// Run seeds a store from cfg, registers its subscriptions and applies its
// steps in order. Options are passed to [statestore.New].
//
// Every listener call is recorded in the returned report, in call order.
func Run(cfg *config.Script, opts ...statestore.Option) (*Report, error) {
	st, err := NewStore(cfg, opts...)
	if err != nil {
		return nil, err
	}

	report := &Report{
		StoreID:       st.ID(),
		Notifications: []Notification{},
	}
	step := -1

	subs, err := Attach(st, cfg.Subscriptions, func(name string, newState, oldState statestore.State[string]) {
		report.Notifications = append(report.Notifications, Notification{
			Subscription: name,
			Step:         step,
			NewState:     newState,
			OldState:     oldState,
		})
	})
	if err != nil {
		return nil, err
	}

	for i, s := range cfg.Steps {
		step = i
		switch s.Action() {
		case "set_state":
			st.SetState(s.SetState)
		case "set_data":
			st.SetData(s.SetData)
		case "unsubscribe":
			sub, ok := subs[s.Unsubscribe]
			if !ok {
				return nil, fmt.Errorf("steps[%d]: unknown subscription %q", i, s.Unsubscribe)
			}
			sub.Unsubscribe()
		default:
			return nil, fmt.Errorf("steps[%d]: no action", i)
		}
	}

	report.State = st.State()
	report.Data = st.Data()
	return report, nil
}

// NotifyFunc receives the listener calls of subscriptions registered by
// [Attach], tagged with the subscription name.
type NotifyFunc func(name string, newState, oldState statestore.State[string])

// Attach registers every subscription in subs on st and routes their calls
// to notify. It returns the subscriptions by name.
func Attach(st *statestore.Store[string], subs []config.SubscriptionConfig, notify NotifyFunc) (map[string]*statestore.Subscription[string], error) {
	out := make(map[string]*statestore.Subscription[string], len(subs))
	for _, sc := range subs {
		sel, err := selectorFor(sc)
		if err != nil {
			return nil, err
		}

		name := sc.Name
		sub, err := st.Subscribe(func(newState, oldState statestore.State[string]) {
			notify(name, newState, oldState)
		}, sel)
		if err != nil {
			return nil, fmt.Errorf("subscription %q: %w", sc.Name, err)
		}
		out[sc.Name] = sub
	}
	return out, nil
}

func selectorFor(sc config.SubscriptionConfig) (statestore.Selector[string], error) {
	switch sc.Selects() {
	case "key":
		return statestore.Key(sc.Key), nil
	case "match":
		match, err := config.CompileMatch(sc.Match)
		if err != nil {
			return nil, fmt.Errorf("subscription %q: %w", sc.Name, err)
		}
		return statestore.Match(match), nil
	}
	return statestore.All[string](), nil
}

// Query evaluates a JSONPath expression against state and returns every
// match. A path that matches nothing yields an empty result.
func Query(state map[string]any, path string) ([]any, error) {
	x, err := jp.ParseString(path)
	if err != nil {
		return nil, fmt.Errorf("invalid JSONPath %q: %w", path, err)
	}
	return x.Get(state), nil
}
