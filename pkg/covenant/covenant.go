// Package covenant is the public, handle-based surface of the contract
// testing core. Callers hold opaque integer handles to pacts and
// interactions, build expectations through the With* mutators, then
// hand the pact to a mock server or the verifier. Mutators return a
// boolean: false means the handle is unknown or the pact has been
// frozen by a running mock server.
package covenant

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/covenant-oss/covenant/internal/app/handles"
	"github.com/covenant-oss/covenant/internal/app/matchers"
	"github.com/covenant-oss/covenant/internal/app/pactfile"
)

type PactHandle uint32

type InteractionHandle uint32

type MessagePactHandle uint32

type MessageHandle uint32

// InteractionPart selects the request or response side of an
// interaction for mutators that apply to both.
type InteractionPart int

const (
	PartRequest InteractionPart = iota
	PartResponse
)

var registry = handles.NewRegistry()

var (
	lastErrMu sync.Mutex
	lastErr   string
)

func setLastError(message string) {
	lastErrMu.Lock()
	defer lastErrMu.Unlock()
	lastErr = message
}

// LastError returns the message of the most recent failure recorded by
// this surface, or the empty string.
func LastError() string {
	lastErrMu.Lock()
	defer lastErrMu.Unlock()
	return lastErr
}

type pactObject struct {
	pact         *pactfile.Pact
	interactions []uint32
}

type interactionObject struct {
	owner       uint32
	interaction *pactfile.Interaction
}

type messagePactObject struct {
	pact     *pactfile.Pact
	messages []uint32
}

type messageObject struct {
	owner   uint32
	message *pactfile.Message
}

// NewPact creates an empty pact between the two pacticipants and
// returns its handle.
func NewPact(consumer, provider string) PactHandle {
	handle := registry.Allocate(&pactObject{pact: pactfile.New(consumer, provider)})
	log.WithField("consumer", consumer).WithField("provider", provider).Debug("created pact")
	return PactHandle(handle)
}

// NewInteraction appends an interaction to the pact and returns its
// handle. Returns 0 when the pact handle is invalid or frozen.
func NewInteraction(pact PactHandle, description string) InteractionHandle {
	var handle InteractionHandle
	ok := registry.WithMutable(uint32(pact), func(object interface{}) {
		p, ok := object.(*pactObject)
		if !ok {
			return
		}
		interaction := &pactfile.Interaction{Description: description}
		p.pact.Interactions = append(p.pact.Interactions, interaction)
		allocated := registry.Allocate(&interactionObject{owner: uint32(pact), interaction: interaction})
		p.interactions = append(p.interactions, allocated)
		handle = InteractionHandle(allocated)
	})
	if !ok || handle == 0 {
		setLastError("invalid or frozen pact handle")
	}
	return handle
}

// NewMessagePact creates an empty message pact.
func NewMessagePact(consumer, provider string) MessagePactHandle {
	return MessagePactHandle(registry.Allocate(&messagePactObject{pact: pactfile.New(consumer, provider)}))
}

// NewMessage appends a message to the message pact.
func NewMessage(pact MessagePactHandle, description string) MessageHandle {
	var handle MessageHandle
	ok := registry.WithMutable(uint32(pact), func(object interface{}) {
		p, ok := object.(*messagePactObject)
		if !ok {
			return
		}
		message := &pactfile.Message{Description: description}
		p.pact.Messages = append(p.pact.Messages, message)
		allocated := registry.Allocate(&messageObject{owner: uint32(pact), message: message})
		p.messages = append(p.messages, allocated)
		handle = MessageHandle(allocated)
	})
	if !ok || handle == 0 {
		setLastError("invalid or frozen message pact handle")
	}
	return handle
}

// withInteraction runs fn on a live, unfrozen interaction. The owning
// pact's frozen state wins over the interaction's own.
func withInteraction(handle InteractionHandle, fn func(i *interactionObject)) bool {
	object, ok := registry.Get(uint32(handle))
	if !ok {
		setLastError("unknown interaction handle")
		return false
	}
	i, ok := object.(*interactionObject)
	if !ok {
		setLastError("handle does not refer to an interaction")
		return false
	}
	if registry.Frozen(i.owner) {
		setLastError("pact is frozen: a mock server is using it")
		return false
	}
	return registry.WithMutable(uint32(handle), func(object interface{}) {
		fn(object.(*interactionObject))
	})
}

func withMessage(handle MessageHandle, fn func(m *messageObject)) bool {
	object, ok := registry.Get(uint32(handle))
	if !ok {
		setLastError("unknown message handle")
		return false
	}
	m, ok := object.(*messageObject)
	if !ok {
		setLastError("handle does not refer to a message")
		return false
	}
	if registry.Frozen(m.owner) {
		setLastError("message pact is frozen")
		return false
	}
	return registry.WithMutable(uint32(handle), func(object interface{}) {
		fn(object.(*messageObject))
	})
}

// Given records a provider state on the interaction.
func Given(handle InteractionHandle, state string) bool {
	return withInteraction(handle, func(i *interactionObject) {
		i.interaction.ProviderStates = append(i.interaction.ProviderStates,
			pactfile.ProviderState{Name: state})
	})
}

// GivenWithParam records a provider state parameter. The state entry
// is created if it is not already present.
func GivenWithParam(handle InteractionHandle, state, name, paramValue string) bool {
	return withInteraction(handle, func(i *interactionObject) {
		for idx := range i.interaction.ProviderStates {
			if i.interaction.ProviderStates[idx].Name == state {
				if i.interaction.ProviderStates[idx].Params == nil {
					i.interaction.ProviderStates[idx].Params = map[string]interface{}{}
				}
				i.interaction.ProviderStates[idx].Params[name] = paramValue
				return
			}
		}
		i.interaction.ProviderStates = append(i.interaction.ProviderStates,
			pactfile.ProviderState{Name: state, Params: map[string]interface{}{name: paramValue}})
	})
}

// UponReceiving replaces the interaction description.
func UponReceiving(handle InteractionHandle, description string) bool {
	return withInteraction(handle, func(i *interactionObject) {
		i.interaction.Description = description
	})
}

// WithRequest sets the method and path. The path may be a matcher
// expression; its rules land in the path category.
func WithRequest(handle InteractionHandle, method, path string) bool {
	return withInteraction(handle, func(i *interactionObject) {
		i.interaction.Request.Method = method
		if !matchers.IsExpression(path) {
			i.interaction.Request.Path = path
			return
		}
		definition, err := matchers.Parse(path)
		if err != nil {
			setLastError(err.Error())
			i.interaction.Request.Path = path
			return
		}
		i.interaction.Request.Path = definition.Value
		rules := i.interaction.Request.EnsureRules()
		if rules.Path == nil {
			rules.Path = matchers.NewCategory()
		}
		rules.Path.Add("$", definition.Rules...)
	})
}

// WithQueryParam adds a query parameter expectation. The value may be
// a matcher expression.
func WithQueryParam(handle InteractionHandle, name, paramValue string) bool {
	return withInteraction(handle, func(i *interactionObject) {
		if i.interaction.Request.Query == nil {
			i.interaction.Request.Query = map[string][]string{}
		}
		resolved := paramValue
		if matchers.IsExpression(paramValue) {
			definition, err := matchers.Parse(paramValue)
			if err != nil {
				setLastError(err.Error())
			} else {
				resolved = definition.Value
				rules := i.interaction.Request.EnsureRules()
				if rules.Query == nil {
					rules.Query = matchers.NewCategory()
				}
				rules.Query.Add(name, definition.Rules...)
			}
		}
		i.interaction.Request.Query[name] = append(i.interaction.Request.Query[name], resolved)
	})
}

// WithHeader adds a header expectation to the chosen part. The value
// may be a matcher expression.
func WithHeader(handle InteractionHandle, part InteractionPart, name, headerValue string) bool {
	return withInteraction(handle, func(i *interactionObject) {
		resolved := headerValue
		var rules *pactfile.Rules
		if matchers.IsExpression(headerValue) {
			definition, err := matchers.Parse(headerValue)
			if err != nil {
				setLastError(err.Error())
			} else {
				resolved = definition.Value
				if part == PartRequest {
					rules = i.interaction.Request.EnsureRules()
				} else {
					rules = i.interaction.Response.EnsureRules()
				}
				if rules.Header == nil {
					rules.Header = matchers.NewCategory()
				}
				rules.Header.Add(name, definition.Rules...)
			}
		}
		if part == PartRequest {
			if i.interaction.Request.Headers == nil {
				i.interaction.Request.Headers = map[string]string{}
			}
			i.interaction.Request.Headers[name] = resolved
		} else {
			if i.interaction.Response.Headers == nil {
				i.interaction.Response.Headers = map[string]string{}
			}
			i.interaction.Response.Headers[name] = resolved
		}
	})
}

// WithResponseStatus sets the response status code.
func WithResponseStatus(handle InteractionHandle, status int) bool {
	return withInteraction(handle, func(i *interactionObject) {
		i.interaction.Response.Status = status
	})
}
