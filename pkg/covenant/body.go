package covenant

import (
	"github.com/covenant-oss/covenant/internal/app/generators"
	"github.com/covenant-oss/covenant/internal/app/matchers"
	"github.com/covenant-oss/covenant/internal/app/pactfile"
	"github.com/covenant-oss/covenant/internal/app/value"
)

// WithBody sets the body of the chosen part. A JSON body is scanned
// for matcher expressions: any string leaf of the form "matching(...)"
// (or notEmpty, eachKey, eachValue, atLeast, atMost) is replaced by
// its example value, and the parsed rules and generators are embedded
// at that leaf's path.
func WithBody(handle InteractionHandle, part InteractionPart, contentType, body string) bool {
	return withInteraction(handle, func(i *interactionObject) {
		processed, category, gens, err := processBody(body)
		if err != nil {
			setLastError(err.Error())
			return
		}
		if part == PartRequest {
			applyBody(&i.interaction.Request.Headers, contentType)
			i.interaction.Request.Body = &processed
			if !category.Empty() {
				i.interaction.Request.EnsureRules().Body = category
			}
			attachBodyGenerators(&i.interaction.Request.Generators, gens)
		} else {
			applyBody(&i.interaction.Response.Headers, contentType)
			i.interaction.Response.Body = &processed
			if !category.Empty() {
				i.interaction.Response.EnsureRules().Body = category
			}
			attachBodyGenerators(&i.interaction.Response.Generators, gens)
		}
	})
}

func applyBody(headers *map[string]string, contentType string) {
	if contentType == "" {
		return
	}
	if *headers == nil {
		*headers = map[string]string{}
	}
	(*headers)["Content-Type"] = contentType
}

func attachBodyGenerators(target **pactfile.Generators, gens map[string]generators.Generator) {
	if len(gens) == 0 {
		return
	}
	if *target == nil {
		*target = &pactfile.Generators{}
	}
	(*target).Body = gens
}

// processBody parses the body and substitutes matcher expressions,
// returning the concrete body plus the rules and generators collected
// along the way. A body that is not valid JSON is kept verbatim as a
// string value.
func processBody(body string) (value.Value, *matchers.Category, map[string]generators.Generator, error) {
	parsed, err := value.Parse([]byte(body))
	if err != nil {
		return value.NewString(body), matchers.NewCategory(), nil, nil
	}
	category := matchers.NewCategory()
	gens := map[string]generators.Generator{}
	processed, err := substitute(parsed, value.RootPath(), category, gens)
	if err != nil {
		return value.NewNull(), nil, nil, err
	}
	return processed, category, gens, nil
}

func substitute(v value.Value, path value.Path, category *matchers.Category, gens map[string]generators.Generator) (value.Value, error) {
	switch v.Kind() {
	case value.String:
		if !matchers.IsExpression(v.Str()) {
			return v, nil
		}
		definition, err := matchers.Parse(v.Str())
		if err != nil {
			return v, err
		}
		category.Add(path.String(), definition.Rules...)
		if definition.Generator != nil {
			gens[path.String()] = *definition.Generator
		}
		return definition.ExampleValue(), nil
	case value.Array:
		items := make([]value.Value, 0, v.Len())
		for idx, item := range v.Items() {
			replaced, err := substitute(item, path.Index(idx), category, gens)
			if err != nil {
				return v, err
			}
			items = append(items, replaced)
		}
		return value.NewArray(items...), nil
	case value.Object:
		pairs := make([]interface{}, 0, v.Len()*2)
		for _, key := range v.Keys() {
			item, _ := v.Get(key)
			replaced, err := substitute(item, path.Field(key), category, gens)
			if err != nil {
				return v, err
			}
			pairs = append(pairs, key, replaced)
		}
		return value.NewObject(pairs...), nil
	}
	return v, nil
}
