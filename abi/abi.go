// Package abi models the contract interface description: callable functions
// with typed inputs and outputs, the function header fields carried by
// external messages, and the translation of CLI-style arguments into the JSON
// argument object the encoder consumes.
package abi

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Param is a single named, typed function parameter.
type Param struct {
	Name     string `json:"name"`
	TypeName string `json:"type"`

	typ Type
}

// Type returns the parsed parameter type.
func (p *Param) Type() Type {
	return p.typ
}

// Function describes one callable contract method.
type Function struct {
	Name    string  `json:"name"`
	Inputs  []Param `json:"inputs"`
	Outputs []Param `json:"outputs"`
	// ID overrides the computed function id when present (hex, "0x..." allowed).
	ID string `json:"id,omitempty"`

	contract *Contract
}

// Contract is a parsed ABI document.
type Contract struct {
	Version   int        `json:"ABI version"`
	Header    []string   `json:"header"`
	Functions []Function `json:"functions"`

	byName map[string]*Function
}

// LoadContract parses ABI JSON text.
func LoadContract(data []byte) (*Contract, error) {
	var c Contract
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}
	if c.Version == 0 {
		c.Version = 2
	}

	c.byName = make(map[string]*Function, len(c.Functions))
	for i := range c.Functions {
		fn := &c.Functions[i]
		fn.contract = &c
		for j := range fn.Inputs {
			t, err := ParseType(fn.Inputs[j].TypeName)
			if err != nil {
				return nil, fmt.Errorf("function %s input %s: %w", fn.Name, fn.Inputs[j].Name, err)
			}
			fn.Inputs[j].typ = t
		}
		for j := range fn.Outputs {
			t, err := ParseType(fn.Outputs[j].TypeName)
			if err != nil {
				return nil, fmt.Errorf("function %s output %s: %w", fn.Name, fn.Outputs[j].Name, err)
			}
			fn.Outputs[j].typ = t
		}
		c.byName[fn.Name] = fn
	}

	return &c, nil
}

// LoadContractFile reads and parses an ABI file.
func LoadContractFile(path string) (*Contract, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ABI file %s: %w", path, err)
	}
	c, err := LoadContract(data)
	if err != nil {
		return nil, fmt.Errorf("ABI file %s: %w", path, err)
	}
	return c, nil
}

// Function looks up a function by name.
func (c *Contract) Function(name string) (*Function, error) {
	fn, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("failed to load function %s from abi", name)
	}
	return fn, nil
}

// HasHeader reports whether the ABI declares the given header field.
func (c *Contract) HasHeader(field string) bool {
	for _, h := range c.Header {
		if h == field {
			return true
		}
	}
	return false
}

// Signature returns the canonical function signature string hashed into the
// function id: name(inputs)(outputs)vN.
func (f *Function) Signature() string {
	var sb strings.Builder
	sb.WriteString(f.Name)
	sb.WriteByte('(')
	for i, p := range f.Inputs {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(p.TypeName)
	}
	sb.WriteString(")(")
	for i, p := range f.Outputs {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(p.TypeName)
	}
	sb.WriteByte(')')
	version := 2
	if f.contract != nil && f.contract.Version != 0 {
		version = f.contract.Version
	}
	sb.WriteString("v")
	sb.WriteString(strconv.Itoa(version))
	return sb.String()
}

// baseID is the first 32 bits of sha256 over the signature, or the explicit
// id from the ABI when declared.
func (f *Function) baseID() (uint32, error) {
	if f.ID != "" {
		id, err := strconv.ParseUint(strings.TrimPrefix(f.ID, "0x"), 16, 32)
		if err != nil {
			return 0, fmt.Errorf("function %s has invalid explicit id %q: %w", f.Name, f.ID, err)
		}
		return uint32(id), nil
	}
	sum := sha256.Sum256([]byte(f.Signature()))
	return binary.BigEndian.Uint32(sum[:4]), nil
}

// InputID returns the function id expected in inbound call bodies.
func (f *Function) InputID() (uint32, error) {
	id, err := f.baseID()
	if err != nil {
		return 0, err
	}
	return id & 0x7FFFFFFF, nil
}

// OutputID returns the function id carried by outbound return bodies.
func (f *Function) OutputID() (uint32, error) {
	id, err := f.baseID()
	if err != nil {
		return 0, err
	}
	return id | 0x80000000, nil
}
