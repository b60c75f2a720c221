package covenant

import (
	"time"

	"github.com/covenant-oss/covenant/internal/app/generators"
	"github.com/covenant-oss/covenant/internal/app/pactfile"
	"github.com/covenant-oss/covenant/internal/app/value"
)

// MessageExpectsToReceive replaces the message description.
func MessageExpectsToReceive(handle MessageHandle, description string) bool {
	return withMessage(handle, func(m *messageObject) {
		m.message.Description = description
	})
}

// MessageGiven records a provider state on the message.
func MessageGiven(handle MessageHandle, state string) bool {
	return withMessage(handle, func(m *messageObject) {
		m.message.ProviderStates = append(m.message.ProviderStates,
			pactfile.ProviderState{Name: state})
	})
}

// MessageWithContents sets the message payload. Matcher expressions in
// a JSON payload are substituted the same way WithBody does for
// interactions.
func MessageWithContents(handle MessageHandle, contentType, contents string) bool {
	return withMessage(handle, func(m *messageObject) {
		processed, category, gens, err := processBody(contents)
		if err != nil {
			setLastError(err.Error())
			return
		}
		m.message.Contents = &processed
		if contentType != "" {
			if m.message.Metadata == nil {
				m.message.Metadata = map[string]string{}
			}
			m.message.Metadata["contentType"] = contentType
		}
		if !category.Empty() {
			if m.message.MatchingRules == nil {
				m.message.MatchingRules = &pactfile.Rules{}
			}
			m.message.MatchingRules.Body = category
		}
		if len(gens) > 0 {
			if m.message.Generators == nil {
				m.message.Generators = &pactfile.Generators{}
			}
			m.message.Generators.Body = gens
		}
	})
}

// MessageWithMetadata adds one metadata entry.
func MessageWithMetadata(handle MessageHandle, key, metadataValue string) bool {
	return withMessage(handle, func(m *messageObject) {
		if m.message.Metadata == nil {
			m.message.Metadata = map[string]string{}
		}
		m.message.Metadata[key] = metadataValue
	})
}

// MessageReify renders the message contents with every generator
// applied, as the payload a consumer test should feed its handler.
// Returns the empty string for an unknown handle.
func MessageReify(handle MessageHandle) string {
	object, ok := registry.Get(uint32(handle))
	if !ok {
		setLastError("unknown message handle")
		return ""
	}
	m, ok := object.(*messageObject)
	if !ok || m.message.Contents == nil {
		return ""
	}
	contents := *m.message.Contents
	if m.message.Generators != nil && len(m.message.Generators.Body) > 0 {
		ctx := generators.NewContext(time.Now().UnixNano())
		contents = reifyContents(contents, m.message.Generators.Body, ctx)
	}
	return contents.String()
}

func reifyContents(contents value.Value, gens map[string]generators.Generator, ctx *generators.Context) value.Value {
	return reifyAt(contents, value.RootPath(), gens, ctx)
}

func reifyAt(v value.Value, path value.Path, gens map[string]generators.Generator, ctx *generators.Context) value.Value {
	if gen, ok := gens[path.String()]; ok {
		return gen.Generate(ctx, v)
	}
	switch v.Kind() {
	case value.Array:
		items := make([]value.Value, 0, v.Len())
		for idx, item := range v.Items() {
			items = append(items, reifyAt(item, path.Index(idx), gens, ctx))
		}
		return value.NewArray(items...)
	case value.Object:
		pairs := make([]interface{}, 0, v.Len()*2)
		for _, key := range v.Keys() {
			item, _ := v.Get(key)
			pairs = append(pairs, key, reifyAt(item, path.Field(key), gens, ctx))
		}
		return value.NewObject(pairs...)
	}
	return v
}

// WriteMessagePactFile persists a message pact. Codes follow
// WritePactFile: 0 written, 1 I/O or serialization failure, 2 unknown
// handle, 3 merge conflict.
func WriteMessagePactFile(handle MessagePactHandle, dir string, overwrite bool) int {
	object, ok := registry.Get(uint32(handle))
	if !ok {
		setLastError("unknown message pact handle")
		return 2
	}
	p, ok := object.(*messagePactObject)
	if !ok {
		setLastError("handle does not refer to a message pact")
		return 2
	}
	return writeCode(pactfile.Write(p.pact, dir, overwrite))
}
