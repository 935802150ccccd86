// Package actions defines the commands a client queues for upload: a tagged
// union of payload types, the kind that decides how each is authorized, and
// the versioned wire encoding.
package actions

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind decides which authentication context may issue a command and how it is attributed.
type Kind string

const (
	KindDeviceAutomatic  Kind = "device_automatic"
	KindParentAuthorized Kind = "parent_authorized"
	KindChildAuthorized  Kind = "child_authorized"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindDeviceAutomatic, KindParentAuthorized, KindChildAuthorized:
		return true
	}
	return false
}

// Type identifies the payload of a command.
type Type string

const (
	TypeAddUsedTime        Type = "ADD_USED_TIME"
	TypeAddUsedTimeV2      Type = "ADD_USED_TIME_V2"
	TypeUpdateDeviceStatus Type = "UPDATE_DEVICE_STATUS"

	TypeCreateCategory             Type = "CREATE_CATEGORY"
	TypeDeleteCategory             Type = "DELETE_CATEGORY"
	TypeUpdateCategoryTitle        Type = "UPDATE_CATEGORY_TITLE"
	TypeAddCategoryApps            Type = "ADD_CATEGORY_APPS"
	TypeRemoveCategoryApps         Type = "REMOVE_CATEGORY_APPS"
	TypeCreateTimeLimitRule        Type = "CREATE_TIME_LIMIT_RULE"
	TypeUpdateTimeLimitRule        Type = "UPDATE_TIME_LIMIT_RULE"
	TypeDeleteTimeLimitRule        Type = "DELETE_TIME_LIMIT_RULE"
	TypeIncrementCategoryExtraTime Type = "INCREMENT_CATEGORY_EXTRA_TIME"
	TypeSetUserLimitLoginCategory  Type = "SET_USER_LIMIT_LOGIN_CATEGORY"
	TypeRemoveUser                 Type = "REMOVE_USER"
	TypeSetKeepSignedIn            Type = "SET_KEEP_SIGNED_IN"

	TypeChildSignIn Type = "CHILD_SIGN_IN"
)

// EncodingVersion is written into every envelope.
const EncodingVersion = 1

// Payload is implemented by every command body.
type Payload interface {
	ActionType() Type
	Validate() error
}

// Action is a command ready to be authenticated and queued.
type Action struct {
	Payload Payload
}

// New wraps a payload.
func New(p Payload) Action {
	return Action{Payload: p}
}

// Type returns the payload type.
func (a Action) Type() Type {
	if a.Payload == nil {
		return ""
	}
	return a.Payload.ActionType()
}

// Kind returns the kind registered for the payload type.
func (a Action) Kind() Kind {
	e, ok := registry[a.Type()]
	if !ok {
		return ""
	}
	return e.kind
}

type entry struct {
	kind Kind
	new  func() Payload
}

var registry = map[Type]entry{
	TypeAddUsedTime:        {KindDeviceAutomatic, func() Payload { return &AddUsedTime{} }},
	TypeAddUsedTimeV2:      {KindDeviceAutomatic, func() Payload { return &AddUsedTimeV2{} }},
	TypeUpdateDeviceStatus: {KindDeviceAutomatic, func() Payload { return &UpdateDeviceStatus{} }},

	TypeCreateCategory:             {KindParentAuthorized, func() Payload { return &CreateCategory{} }},
	TypeDeleteCategory:             {KindParentAuthorized, func() Payload { return &DeleteCategory{} }},
	TypeUpdateCategoryTitle:        {KindParentAuthorized, func() Payload { return &UpdateCategoryTitle{} }},
	TypeAddCategoryApps:            {KindParentAuthorized, func() Payload { return &AddCategoryApps{} }},
	TypeRemoveCategoryApps:         {KindParentAuthorized, func() Payload { return &RemoveCategoryApps{} }},
	TypeCreateTimeLimitRule:        {KindParentAuthorized, func() Payload { return &CreateTimeLimitRule{} }},
	TypeUpdateTimeLimitRule:        {KindParentAuthorized, func() Payload { return &UpdateTimeLimitRule{} }},
	TypeDeleteTimeLimitRule:        {KindParentAuthorized, func() Payload { return &DeleteTimeLimitRule{} }},
	TypeIncrementCategoryExtraTime: {KindParentAuthorized, func() Payload { return &IncrementCategoryExtraTime{} }},
	TypeSetUserLimitLoginCategory:  {KindParentAuthorized, func() Payload { return &SetUserLimitLoginCategory{} }},
	TypeRemoveUser:                 {KindParentAuthorized, func() Payload { return &RemoveUser{} }},
	TypeSetKeepSignedIn:            {KindParentAuthorized, func() Payload { return &SetKeepSignedIn{} }},

	TypeChildSignIn: {KindChildAuthorized, func() Payload { return &ChildSignIn{} }},
}

// KindOf returns the kind registered for t.
func KindOf(t Type) (Kind, bool) {
	e, ok := registry[t]
	return e.kind, ok
}

// ErrUnknownType is returned when decoding an unregistered payload type.
var ErrUnknownType = errors.New("unknown action type")

type envelope struct {
	V       int             `json:"v"`
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Encode serializes a into the versioned envelope.
func Encode(a Action) (string, error) {
	if a.Payload == nil {
		return "", errors.New("encode action: nil payload")
	}
	if _, ok := registry[a.Type()]; !ok {
		return "", fmt.Errorf("encode action: %w: %s", ErrUnknownType, a.Type())
	}
	if err := a.Payload.Validate(); err != nil {
		return "", fmt.Errorf("encode %s: %w", a.Type(), err)
	}
	body, err := json.Marshal(a.Payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", a.Type(), err)
	}
	data, err := json.Marshal(envelope{V: EncodingVersion, Type: a.Type(), Payload: body})
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}
	return string(data), nil
}

// Decode parses an envelope produced by Encode.
func Decode(encoded string) (Action, error) {
	var env envelope
	if err := json.Unmarshal([]byte(encoded), &env); err != nil {
		return Action{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.V != EncodingVersion {
		return Action{}, fmt.Errorf("unsupported encoding version %d", env.V)
	}
	e, ok := registry[env.Type]
	if !ok {
		return Action{}, fmt.Errorf("%w: %s", ErrUnknownType, env.Type)
	}
	p := e.new()
	if err := json.Unmarshal(env.Payload, p); err != nil {
		return Action{}, fmt.Errorf("unmarshal %s: %w", env.Type, err)
	}
	if err := p.Validate(); err != nil {
		return Action{}, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return Action{Payload: p}, nil
}
