// Package flow drives the resumable invoice-creation state machine. One
// flow is active per user; session state is persisted so a flow survives
// restarts. No invoice is persisted until the user confirms.
package flow

import (
	"fmt"

	"github.com/mina-assistant/billing/internal/invoice"
)

// FlowName identifies the invoice-creation flow in session state
const FlowName = "billing_invoice_flow"

// State is a step in the invoice-creation flow
type State string

const (
	StateInit            State = "INIT"
	StateItemsExtracted  State = "ITEMS_EXTRACTED"
	StateCustomerPending State = "CUSTOMER_PENDING"
	StatePaymentPending  State = "PAYMENT_PENDING"
	StateConfirmation    State = "CONFIRMATION"
	StateCompleted       State = "COMPLETED"
)

var validStates = map[State]bool{
	StateInit:            true,
	StateItemsExtracted:  true,
	StateCustomerPending: true,
	StatePaymentPending:  true,
	StateConfirmation:    true,
	StateCompleted:       true,
}

// SessionData is the working set of an in-progress invoice flow
type SessionData struct {
	Items    []invoice.LineItem `json:"items"`
	Customer string             `json:"customer,omitempty"`
	Payment  string             `json:"payment,omitempty"` // PAID or DUE
	Draft    *invoice.Invoice   `json:"draft,omitempty"`
}

// Session is a persisted flow session for one user
type Session struct {
	Flow  string      `json:"flow"`
	State State       `json:"state"`
	Data  SessionData `json:"data"`
}

// Store persists flow sessions keyed by phone number
type Store interface {
	// GetSession returns the active session for a phone, or nil
	GetSession(phone string) (*Session, error)

	// SetSession saves the active session for a phone
	SetSession(phone string, session *Session) error

	// ClearSession removes the active session for a phone
	ClearSession(phone string) error
}

// Updates carries new information into Advance
type Updates struct {
	Items    []invoice.LineItem `json:"items,omitempty"`
	Customer string             `json:"customer,omitempty"`
	Payment  string             `json:"payment,omitempty"`
	Draft    *invoice.Invoice   `json:"draft,omitempty"`
	Confirm  bool               `json:"confirm,omitempty"`
}

// Result reports the outcome of a flow operation
type Result struct {
	Status     string       `json:"status"`
	Reason     string       `json:"reason,omitempty"`
	State      State        `json:"state,omitempty"`
	NextAction string       `json:"next_action,omitempty"`
	Data       *SessionData `json:"data,omitempty"`
}

// Flow operates the invoice-creation state machine on a session store
type Flow struct {
	store Store
}

// New creates a Flow on a session store
func New(store Store) *Flow {
	return &Flow{store: store}
}

// StartOrResume starts a new invoice flow or resumes the existing one.
// A different active billing flow blocks a new start.
func (f *Flow) StartOrResume(phone string, initial *SessionData) (*Result, error) {
	session, err := f.store.GetSession(phone)
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}

	if session != nil {
		if session.Flow == FlowName {
			return &Result{
				Status:     "resumed",
				State:      session.State,
				NextAction: nextActionFor(session.State),
				Data:       &session.Data,
			}, nil
		}
		// Block parallel billing flows
		return &Result{
			Status: "blocked",
			Reason: "another_billing_flow_active",
		}, nil
	}

	data := SessionData{}
	if initial != nil {
		data = *initial
	}

	session = &Session{Flow: FlowName, State: StateInit, Data: data}
	if err := f.store.SetSession(phone, session); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}

	return &Result{
		Status:     "started",
		State:      StateInit,
		NextAction: nextActionFor(StateInit),
	}, nil
}

// Advance moves the flow forward based on provided updates
func (f *Flow) Advance(phone string, updates Updates) (*Result, error) {
	session, err := f.store.GetSession(phone)
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}

	if session == nil || session.Flow != FlowName {
		return &Result{Status: "error", Reason: "no_active_invoice_flow"}, nil
	}

	current := session.State
	if !validStates[current] {
		return &Result{Status: "error", Reason: "invalid_state", State: current}, nil
	}

	merge(&session.Data, updates)

	switch current {
	case StateInit:
		if len(session.Data.Items) > 0 {
			return f.transition(phone, session, StateItemsExtracted)
		}
		return stay(current, &session.Data, "await_items"), nil

	case StateItemsExtracted:
		if session.Data.Customer != "" {
			return f.transition(phone, session, StatePaymentPending)
		}
		return f.transition(phone, session, StateCustomerPending)

	case StateCustomerPending:
		if session.Data.Customer != "" {
			return f.transition(phone, session, StatePaymentPending)
		}
		return stay(current, &session.Data, "await_customer"), nil

	case StatePaymentPending:
		if session.Data.Payment != "" {
			return f.transition(phone, session, StateConfirmation)
		}
		return stay(current, &session.Data, "await_payment_details"), nil

	case StateConfirmation:
		if updates.Confirm {
			return f.transition(phone, session, StateCompleted)
		}
		return stay(current, &session.Data, "await_confirmation"), nil

	case StateCompleted:
		return &Result{Status: "done", State: StateCompleted}, nil
	}

	return &Result{Status: "error", Reason: "unhandled_state", State: current}, nil
}

// Current returns the active invoice-flow session for a phone, or nil
// when no invoice flow is in progress.
func (f *Flow) Current(phone string) (*Session, error) {
	session, err := f.store.GetSession(phone)
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}
	if session == nil || session.Flow != FlowName {
		return nil, nil
	}
	return session, nil
}

// Cancel aborts an active invoice flow
func (f *Flow) Cancel(phone string) (*Result, error) {
	session, err := f.store.GetSession(phone)
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}

	if session != nil && session.Flow == FlowName {
		if err := f.store.ClearSession(phone); err != nil {
			return nil, fmt.Errorf("clearing session: %w", err)
		}
		return &Result{Status: "cancelled"}, nil
	}

	return &Result{Status: "no_active_flow"}, nil
}

// Complete clears a finished flow and returns its working set for
// finalization.
func (f *Flow) Complete(phone string) (*SessionData, error) {
	session, err := f.store.GetSession(phone)
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}
	if session == nil || session.Flow != FlowName {
		return nil, fmt.Errorf("no active invoice flow for %s", phone)
	}
	if session.State != StateCompleted {
		return nil, fmt.Errorf("flow not completed: %s", session.State)
	}
	if err := f.store.ClearSession(phone); err != nil {
		return nil, fmt.Errorf("clearing session: %w", err)
	}
	return &session.Data, nil
}

func merge(data *SessionData, updates Updates) {
	if len(updates.Items) > 0 {
		data.Items = updates.Items
	}
	if updates.Customer != "" {
		data.Customer = updates.Customer
	}
	if updates.Payment != "" {
		data.Payment = updates.Payment
	}
	if updates.Draft != nil {
		data.Draft = updates.Draft
	}
}

func (f *Flow) transition(phone string, session *Session, next State) (*Result, error) {
	session.State = next
	if err := f.store.SetSession(phone, session); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}
	return &Result{
		Status:     "advanced",
		State:      next,
		NextAction: nextActionFor(next),
		Data:       &session.Data,
	}, nil
}

func stay(state State, data *SessionData, action string) *Result {
	return &Result{
		Status:     "waiting",
		State:      state,
		NextAction: action,
		Data:       data,
	}
}

func nextActionFor(state State) string {
	switch state {
	case StateInit:
		return "extract_items"
	case StateItemsExtracted, StateCustomerPending:
		return "request_customer"
	case StatePaymentPending:
		return "request_payment"
	case StateConfirmation:
		return "request_confirmation"
	case StateCompleted:
		return "none"
	}
	return "unknown"
}
