package contracts

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/orion-sre/orion/internal/orionerr"
)

//go:embed schema/*.schema.json
var schemaFS embed.FS

// Validator rejects malformed messages before they reach the bus. It is the
// Go analogue of orion_bus.validator.ContractValidator: schemas are loaded
// once, compiled, and kept in memory for the process lifetime.
type Validator struct {
	mu      sync.RWMutex
	schemas map[Kind]*jsonschema.Schema
}

// NewValidator compiles the embedded schema for every known Kind. It panics
// only on a programming error (a malformed embedded schema), never on
// caller-supplied input.
func NewValidator() *Validator {
	v := &Validator{schemas: make(map[Kind]*jsonschema.Schema, 7)}
	compiler := jsonschema.NewCompiler()

	kinds := map[Kind]string{
		KindEvent:            "event.schema.json",
		KindIncident:         "incident.schema.json",
		KindDecision:         "decision.schema.json",
		KindApprovalRequest:  "approval_request.schema.json",
		KindApprovalDecision: "approval_decision.schema.json",
		KindAction:           "action.schema.json",
		KindOutcome:          "outcome.schema.json",
	}

	for kind, file := range kinds {
		raw, err := schemaFS.ReadFile("schema/" + file)
		if err != nil {
			panic(fmt.Sprintf("contracts: missing embedded schema %s: %v", file, err))
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			panic(fmt.Sprintf("contracts: invalid embedded schema %s: %v", file, err))
		}
		url := "orion://schema/" + file
		if err := compiler.AddResource(url, doc); err != nil {
			panic(fmt.Sprintf("contracts: cannot register schema %s: %v", file, err))
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			panic(fmt.Sprintf("contracts: cannot compile schema %s: %v", file, err))
		}
		v.schemas[kind] = schema
	}

	return v
}

// ValidationError wraps a contract violation. It is always returned
// synchronously to the caller of Bus.Publish and never has a side effect.
type ValidationError struct {
	Kind Kind
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("contracts: %s failed schema validation: %v", e.Kind, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, orionerr.ErrContractViolation) hold for every
// ValidationError.
func (e *ValidationError) Is(target error) bool { return target == orionerr.ErrContractViolation }

// Validate marshals v to JSON and checks it against the schema registered
// for kind. additionalProperties is rejected by every embedded schema, so
// any field not named in §3 of the contract fails closed here.
func (val *Validator) Validate(kind Kind, v interface{}) error {
	val.mu.RLock()
	schema, ok := val.schemas[kind]
	val.mu.RUnlock()
	if !ok {
		return &ValidationError{Kind: kind, Err: fmt.Errorf("no schema registered for kind %q", kind)}
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return &ValidationError{Kind: kind, Err: fmt.Errorf("marshal: %w", err)}
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return &ValidationError{Kind: kind, Err: fmt.Errorf("unmarshal for validation: %w", err)}
	}

	if err := schema.Validate(inst); err != nil {
		return &ValidationError{Kind: kind, Err: err}
	}
	return nil
}
