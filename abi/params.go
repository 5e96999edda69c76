package abi

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tvmlabs/tonctl/internal/convert"
)

// ParseParams turns CLI argument tokens into the JSON argument object for a
// method call. A single token is passed through unchanged: it is assumed to
// already be a complete JSON object. Otherwise the tokens are matched as
// "--name value" pairs against the method's declared inputs.
func ParseParams(tokens []string, contract *Contract, method string) (string, error) {
	if len(tokens) == 1 {
		// if there is only 1 parameter it must be a json string with arguments
		return tokens[0], nil
	}
	return buildJSONFromParams(tokens, contract, method)
}

func buildJSONFromParams(tokens []string, contract *Contract, method string) (string, error) {
	fn, err := contract.Function(method)
	if err != nil {
		return "", err
	}

	params := make(map[string]interface{}, len(fn.Inputs))
	for i := range fn.Inputs {
		input := &fn.Inputs[i]

		value, err := findParamValue(tokens, input)
		if err != nil {
			return "", err
		}

		switch {
		case input.typ.Kind == KindUint || input.typ.Kind == KindInt:
			v, err := parseIntegerParam(value)
			if err != nil {
				return "", err
			}
			params[input.Name] = v
		case input.typ.IsUintArray():
			elems, err := parseIntegerArray(value)
			if err != nil {
				return "", err
			}
			params[input.Name] = elems
		default:
			params[input.Name] = value
		}
	}

	out, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to serialize arguments: %w", err)
	}
	return string(out), nil
}

// findParamValue locates the "--name" token for input and returns the token
// that follows it.
func findParamValue(tokens []string, input *Param) (string, error) {
	for i, tok := range tokens {
		if strings.TrimLeft(tok, "-") != input.Name {
			continue
		}
		if i+1 >= len(tokens) {
			return "", fmt.Errorf("argument %q of type %q has no value", input.Name, input.TypeName)
		}
		return tokens[i+1], nil
	}
	return "", fmt.Errorf("argument %q of type %q not found", input.Name, input.TypeName)
}

// parseIntegerParam resolves the token-amount shorthand: a value ending in
// 'T' is converted to its base integer representation, anything else passes
// through as a numeric string.
func parseIntegerParam(value string) (string, error) {
	value = strings.Trim(value, "\"")

	if strings.HasSuffix(value, "T") {
		return convert.Tokens(strings.TrimSuffix(value, "T"))
	}
	return value, nil
}

// parseIntegerArray splits a bracket/comma delimited list, dropping empty
// tokens, and applies the same shorthand conversion to each element.
func parseIntegerArray(value string) ([]string, error) {
	var elems []string
	for _, raw := range strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == '[' || r == ']'
	}) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		v, err := parseIntegerParam(raw)
		if err != nil {
			return nil, err
		}
		elems = append(elems, v)
	}
	if elems == nil {
		elems = []string{}
	}
	return elems, nil
}
