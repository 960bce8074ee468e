package main

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// sendRequestSchema guards the send payload before it reaches decoding:
// shape errors become uniform validation failures instead of ad hoc
// decode errors.
const sendRequestSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["receiver_id", "content", "nonce"],
	"additionalProperties": false,
	"properties": {
		"receiver_id": {"type": "integer", "minimum": 1},
		"content": {"type": "string", "minLength": 1, "maxLength": 65536},
		"nonce": {"type": "string", "maxLength": 1024}
	}
}`

const ackRequestSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["message_ids"],
	"additionalProperties": false,
	"properties": {
		"message_ids": {
			"type": "array",
			"minItems": 1,
			"maxItems": 1000,
			"items": {"type": "integer"}
		}
	}
}`

type requestValidator struct {
	send *jsonschema.Schema
	ack  *jsonschema.Schema
}

func newRequestValidator() (*requestValidator, error) {
	compile := func(name, source string) (*jsonschema.Schema, error) {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(source))
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s schema: %w", name, err)
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(name, doc); err != nil {
			return nil, fmt.Errorf("failed to add %s schema: %w", name, err)
		}
		schema, err := compiler.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to compile %s schema: %w", name, err)
		}
		return schema, nil
	}

	send, err := compile("send_request.json", sendRequestSchema)
	if err != nil {
		return nil, err
	}
	ack, err := compile("ack_request.json", ackRequestSchema)
	if err != nil {
		return nil, err
	}

	return &requestValidator{send: send, ack: ack}, nil
}

func (v *requestValidator) validate(schema *jsonschema.Schema, body []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("body is not valid JSON: %w", err)
	}
	return schema.Validate(inst)
}
