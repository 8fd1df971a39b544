package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/okian/pitwall/internal/domain/setup"
)

// Decode parses a JSON session document. It does not validate it.
func Decode(raw []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, decodeError(err)
	}
	return &doc, nil
}

// DecodeYAML parses a YAML session document by converting it to JSON first, so
// both encodings share one set of decoding rules.
func DecodeYAML(raw []byte) (*Document, error) {
	js, err := YAMLToJSON(raw)
	if err != nil {
		return nil, err
	}
	return Decode(js)
}

// YAMLToJSON re-encodes a YAML document as JSON.
func YAMLToJSON(raw []byte) ([]byte, error) {
	var tree any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, &SchemaError{Reason: fmt.Sprintf("invalid YAML: %v", err)}
	}
	if tree == nil {
		return nil, &SchemaError{Reason: "empty document"}
	}
	js, err := json.Marshal(tree)
	if err != nil {
		return nil, &SchemaError{Reason: fmt.Sprintf("unsupported YAML: %v", err)}
	}
	return js, nil
}

func decodeError(err error) error {
	if errors.Is(err, setup.ErrNotObject) {
		return &SchemaError{Path: "initial_setup", Reason: "must be an object"}
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		switch {
		case typeErr.Field == "":
			return &SchemaError{Reason: "document must be an object"}
		case typeErr.Field == "turns":
			return &SchemaError{Path: "turns", Reason: "must be a non-empty list"}
		case strings.HasPrefix(typeErr.Field, "turns."):
			return &MalformedTurnError{Index: -1, Field: strings.TrimPrefix(typeErr.Field, "turns.")}
		default:
			return &SchemaError{Path: typeErr.Field, Reason: fmt.Sprintf("cannot hold a %s", typeErr.Value)}
		}
	}
	return &SchemaError{Reason: fmt.Sprintf("invalid JSON: %v", err)}
}

// Validate checks the keys the engine cannot run without. Top-level keys are
// checked in a fixed order so the first missing one is always reported.
func Validate(doc *Document) error {
	if doc == nil {
		return &SchemaError{Reason: "empty document"}
	}
	switch {
	case doc.Metadata == nil:
		return missing("metadata")
	case doc.Targets == nil:
		return missing("targets")
	case doc.Turns == nil:
		return missing("turns")
	case doc.InitialSetup == nil:
		return missing("initial_setup")
	}
	if len(doc.Turns) == 0 {
		return &SchemaError{Path: "turns", Reason: "must be a non-empty list"}
	}
	switch {
	case doc.Targets.BalanceGoal == nil:
		return missing("targets.balance_goal")
	case doc.Targets.StabilityGoal == nil:
		return missing("targets.stability_goal")
	case doc.Targets.TyreGoal == nil:
		return missing("targets.tyre_goal")
	}
	return nil
}

// Load decodes and validates in one step.
func Load(raw []byte, isYAML bool) (*Document, error) {
	decode := Decode
	if isYAML {
		decode = DecodeYAML
	}
	doc, err := decode(raw)
	if err != nil {
		return nil, err
	}
	if err := Validate(doc); err != nil {
		return nil, err
	}
	return doc, nil
}
