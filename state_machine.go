package campus

import (
	goerrors "github.com/goliatone/go-errors"
)

// ErrInvalidTransition is returned when an AuthState change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid auth state transition", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// authStateMachine holds the AuthState transition graph. Loading is only an
// initial state; once left it is never re-entered.
type authStateMachine struct {
	transitions map[StateKind]map[StateKind]struct{}
}

func newAuthStateMachine() *authStateMachine {
	return &authStateMachine{
		transitions: map[StateKind]map[StateKind]struct{}{
			StateLoading: {
				StateAnonymous:     {},
				StateAuthenticated: {},
			},
			StateAnonymous: {
				StateAnonymous:     {},
				StateAuthenticated: {},
			},
			StateAuthenticated: {
				StateAnonymous:     {},
				StateAuthenticated: {},
			},
		},
	}
}

func (sm *authStateMachine) canTransition(from, to StateKind) bool {
	if from == "" {
		from = StateLoading
	}
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

// validate returns ErrInvalidTransition when from cannot move to next.
func (sm *authStateMachine) validate(from, next AuthState) error {
	if !sm.canTransition(from.Kind, next.Kind) {
		return WrapError(ErrInvalidTransition, nil, map[string]any{
			"from": from.Kind,
			"to":   next.Kind,
		})
	}

	if next.IsAuthenticated() {
		if next.Session == nil || next.Session.UserID == "" {
			return WrapError(ErrInvalidTransition, nil, map[string]any{
				"to":     next.Kind,
				"reason": "authenticated state without session",
			})
		}
		if next.Profile != nil && next.Profile.ID != next.Session.UserID {
			return WrapError(ErrInvalidTransition, nil, map[string]any{
				"to":         next.Kind,
				"reason":     "profile does not belong to session",
				"user_id":    next.Session.UserID,
				"profile_id": next.Profile.ID,
			})
		}
	}

	return nil
}
