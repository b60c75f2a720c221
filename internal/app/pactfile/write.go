package pactfile

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// ErrMergeConflict is returned when an interaction in the document
// collides with one already on disk under the same (description,
// providerStates) key but with different content. The caller decides;
// nothing is silently overwritten.
var ErrMergeConflict = errors.New("interaction conflicts with the one already recorded on disk")

// Write persists the pact document under dir. Unless overwrite is set,
// an existing file is merged: interactions are keyed by (description,
// providerStates); an equal entry is kept once, a differing one is a
// conflict.
func Write(pact *Pact, dir string, overwrite bool) error {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "unable to create pact directory %s", dir)
	}

	path := filepath.Join(dir, pact.FileName())
	target := pact
	if !overwrite {
		existing, err := loadExisting(path)
		if err != nil {
			return err
		}
		if existing != nil {
			log.Infof("merging pact with existing file %s", path)
			target, err = Merge(existing, pact)
			if err != nil {
				return err
			}
		}
	}

	encoded, err := target.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return errors.Wrapf(err, "unable to write pact file %s", path)
	}
	log.Infof("wrote pact file %s with %d interactions and %d messages",
		path, len(target.Interactions), len(target.Messages))
	return nil
}

func loadExisting(path string) (*Pact, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read existing pact file %s", path)
	}
	existing, err := Load(data)
	if err != nil {
		return nil, errors.Wrapf(err, "existing file %s is not a valid pact", path)
	}
	return existing, nil
}

// Merge combines the recorded document into the existing one. The
// result keeps the existing entries' order and appends new ones.
func Merge(existing, recorded *Pact) (*Pact, error) {
	merged := New(recorded.Consumer.Name, recorded.Provider.Name)

	interactionIndex := map[string]int{}
	for _, interaction := range existing.Interactions {
		interactionIndex[interaction.Key()] = len(merged.Interactions)
		merged.Interactions = append(merged.Interactions, interaction)
	}
	for _, interaction := range recorded.Interactions {
		at, seen := interactionIndex[interaction.Key()]
		if !seen {
			interactionIndex[interaction.Key()] = len(merged.Interactions)
			merged.Interactions = append(merged.Interactions, interaction)
			continue
		}
		if !sameDocument(merged.Interactions[at], interaction) {
			return nil, errors.Wrapf(ErrMergeConflict, "interaction %q", interaction.Description)
		}
		merged.Interactions[at] = interaction
	}

	messageIndex := map[string]int{}
	for _, message := range existing.Messages {
		messageIndex[message.Key()] = len(merged.Messages)
		merged.Messages = append(merged.Messages, message)
	}
	for _, message := range recorded.Messages {
		at, seen := messageIndex[message.Key()]
		if !seen {
			messageIndex[message.Key()] = len(merged.Messages)
			merged.Messages = append(merged.Messages, message)
			continue
		}
		if !sameDocument(merged.Messages[at], message) {
			return nil, errors.Wrapf(ErrMergeConflict, "message %q", message.Description)
		}
		merged.Messages[at] = message
	}

	return merged, nil
}

// sameDocument compares two entries by their normalized JSON form.
func sameDocument(a, b interface{}) bool {
	left, err := marshalSorted(a)
	if err != nil {
		return false
	}
	right, err := marshalSorted(b)
	if err != nil {
		return false
	}
	return left == right
}

func marshalSorted(doc interface{}) (string, error) {
	encoded, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	// gjson's @pretty with sortKeys normalizes key order so that two
	// semantically equal documents compare equal
	return gjson.GetBytes(encoded, `@pretty:{"sortKeys":true}`).Raw, nil
}
