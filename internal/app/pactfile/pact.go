// Package pactfile models pact documents: the contract recorded by a
// consumer, its interactions and messages, and the matchingRules and
// generators trees embedded alongside each part.
package pactfile

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/covenant-oss/covenant/internal/app/generators"
	"github.com/covenant-oss/covenant/internal/app/matchers"
	"github.com/covenant-oss/covenant/internal/app/value"
)

// SpecVersion is the pact specification version written to metadata.
const SpecVersion = "3.0.0"

type Pacticipant struct {
	Name string `json:"name"`
}

type ProviderState struct {
	Name   string                 `json:"name"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// Rules groups matching-rule categories per interaction part.
type Rules struct {
	Path   *matchers.Category `json:"path,omitempty"`
	Query  *matchers.Category `json:"query,omitempty"`
	Header *matchers.Category `json:"header,omitempty"`
	Body   *matchers.Category `json:"body,omitempty"`
	Status *matchers.Category `json:"status,omitempty"`
}

func (r *Rules) ensure() *Rules {
	if r == nil {
		return &Rules{}
	}
	return r
}

func (r *Rules) Empty() bool {
	return r == nil ||
		(r.Path.Empty() && r.Query.Empty() && r.Header.Empty() && r.Body.Empty() && r.Status.Empty())
}

// Generators groups generator categories per interaction part. Body,
// header and query generators are keyed by path; path and status take
// at most one.
type Generators struct {
	Path   *generators.Generator           `json:"path,omitempty"`
	Status *generators.Generator           `json:"status,omitempty"`
	Body   map[string]generators.Generator `json:"body,omitempty"`
	Header map[string]generators.Generator `json:"header,omitempty"`
	Query  map[string]generators.Generator `json:"query,omitempty"`
}

func (g *Generators) Empty() bool {
	return g == nil ||
		(g.Path == nil && g.Status == nil && len(g.Body) == 0 && len(g.Header) == 0 && len(g.Query) == 0)
}

type Request struct {
	Method        string              `json:"method"`
	Path          string              `json:"path"`
	Query         map[string][]string `json:"query,omitempty"`
	Headers       map[string]string   `json:"headers,omitempty"`
	Body          *value.Value        `json:"body,omitempty"`
	MatchingRules *Rules              `json:"matchingRules,omitempty"`
	Generators    *Generators         `json:"generators,omitempty"`
}

// BodyRules returns the body rule category, never nil.
func (r *Request) BodyRules() *matchers.Category {
	if r.MatchingRules == nil {
		return nil
	}
	return r.MatchingRules.Body
}

// EnsureRules returns the rules container, allocating it on first use.
func (r *Request) EnsureRules() *Rules {
	r.MatchingRules = r.MatchingRules.ensure()
	return r.MatchingRules
}

type Response struct {
	Status        int               `json:"status"`
	Headers       map[string]string `json:"headers,omitempty"`
	Body          *value.Value      `json:"body,omitempty"`
	MatchingRules *Rules            `json:"matchingRules,omitempty"`
	Generators    *Generators       `json:"generators,omitempty"`
}

func (r *Response) EnsureRules() *Rules {
	r.MatchingRules = r.MatchingRules.ensure()
	return r.MatchingRules
}

type Interaction struct {
	Description    string          `json:"description"`
	ProviderStates []ProviderState `json:"providerStates,omitempty"`
	Request        Request         `json:"request"`
	Response       Response        `json:"response"`
}

// Key identifies an interaction for merge purposes: description plus
// the ordered provider states.
func (i *Interaction) Key() string {
	var b strings.Builder
	b.WriteString(i.Description)
	for _, state := range i.ProviderStates {
		b.WriteString("|")
		b.WriteString(state.Name)
		if len(state.Params) > 0 {
			encoded, _ := json.Marshal(state.Params)
			b.Write(encoded)
		}
	}
	return b.String()
}

type Message struct {
	Description    string            `json:"description"`
	ProviderStates []ProviderState   `json:"providerStates,omitempty"`
	Contents       *value.Value      `json:"contents,omitempty"`
	Metadata       map[string]string `json:"metaData,omitempty"`
	MatchingRules  *Rules            `json:"matchingRules,omitempty"`
	Generators     *Generators       `json:"generators,omitempty"`
}

func (m *Message) Key() string {
	i := Interaction{Description: m.Description, ProviderStates: m.ProviderStates}
	return i.Key()
}

type Pact struct {
	Consumer     Pacticipant            `json:"consumer"`
	Provider     Pacticipant            `json:"provider"`
	Interactions []*Interaction         `json:"interactions,omitempty"`
	Messages     []*Message             `json:"messages,omitempty"`
	Metadata     map[string]interface{} `json:"metadata"`
}

func New(consumer, provider string) *Pact {
	return &Pact{
		Consumer: Pacticipant{Name: consumer},
		Provider: Pacticipant{Name: provider},
		Metadata: map[string]interface{}{
			"pactSpecification": map[string]interface{}{"version": SpecVersion},
		},
	}
}

// Load parses a pact document from JSON.
func Load(data []byte) (*Pact, error) {
	pact := &Pact{}
	if err := json.Unmarshal(data, pact); err != nil {
		return nil, errors.Wrap(err, "unable to parse pact document")
	}
	if pact.Consumer.Name == "" && pact.Provider.Name == "" && len(pact.Interactions) == 0 && len(pact.Messages) == 0 {
		return nil, errors.New("document does not look like a pact: no consumer, provider or interactions")
	}
	if pact.Metadata == nil {
		pact.Metadata = map[string]interface{}{
			"pactSpecification": map[string]interface{}{"version": SpecVersion},
		}
	}
	return pact, nil
}

// Marshal renders the document with stable two-space indentation, the
// way pact files are conventionally written to disk.
func (p *Pact) Marshal() ([]byte, error) {
	encoded, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "unable to serialize pact document")
	}
	return encoded, nil
}

// FileName is the conventional on-disk name for this pact.
func (p *Pact) FileName() string {
	return p.Consumer.Name + "-" + p.Provider.Name + ".json"
}

// FindInteraction returns the interaction with the given description.
func (p *Pact) FindInteraction(description string) (*Interaction, bool) {
	for _, interaction := range p.Interactions {
		if interaction.Description == description {
			return interaction, true
		}
	}
	return nil, false
}
