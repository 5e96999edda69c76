package abi

import (
	"fmt"
	"strconv"
	"strings"
)

// TypeKind classifies an ABI parameter type.
type TypeKind int

const (
	KindUnknown TypeKind = iota
	KindUint
	KindInt
	KindBool
	KindAddress
	KindCell
	KindBytes
	KindString
	KindArray
)

// Type is a parsed ABI parameter type. For KindArray, Elem describes the
// element type. For integer kinds, Bits holds the declared width.
type Type struct {
	Kind TypeKind
	Bits uint
	Elem *Type
	Raw  string
}

// String returns the original type text.
func (t Type) String() string {
	return t.Raw
}

// IsUintArray reports whether the type is an array of unsigned integers, the
// only array shape the parameter builder coerces element-wise.
func (t Type) IsUintArray() bool {
	return t.Kind == KindArray && t.Elem != nil && t.Elem.Kind == KindUint
}

// ParseType parses an ABI type string such as "uint128", "address" or
// "uint256[]". Unknown types are preserved with KindUnknown so callers can
// still pass them through as raw values.
func ParseType(s string) (Type, error) {
	raw := s
	s = strings.TrimSpace(s)
	if s == "" {
		return Type{}, fmt.Errorf("empty type")
	}

	if strings.HasSuffix(s, "[]") {
		elem, err := ParseType(strings.TrimSuffix(s, "[]"))
		if err != nil {
			return Type{}, fmt.Errorf("invalid array type %q: %w", raw, err)
		}
		return Type{Kind: KindArray, Elem: &elem, Raw: raw}, nil
	}

	switch {
	case strings.HasPrefix(s, "uint"):
		bits, err := parseBits(strings.TrimPrefix(s, "uint"), 256)
		if err != nil {
			return Type{}, fmt.Errorf("invalid type %q: %w", raw, err)
		}
		return Type{Kind: KindUint, Bits: bits, Raw: raw}, nil
	case strings.HasPrefix(s, "int"):
		bits, err := parseBits(strings.TrimPrefix(s, "int"), 256)
		if err != nil {
			return Type{}, fmt.Errorf("invalid type %q: %w", raw, err)
		}
		return Type{Kind: KindInt, Bits: bits, Raw: raw}, nil
	case s == "bool":
		return Type{Kind: KindBool, Bits: 1, Raw: raw}, nil
	case s == "address":
		return Type{Kind: KindAddress, Raw: raw}, nil
	case s == "cell":
		return Type{Kind: KindCell, Raw: raw}, nil
	case s == "bytes":
		return Type{Kind: KindBytes, Raw: raw}, nil
	case s == "string":
		return Type{Kind: KindString, Raw: raw}, nil
	default:
		return Type{Kind: KindUnknown, Raw: raw}, nil
	}
}

func parseBits(s string, max uint) (uint, error) {
	if s == "" {
		return max, nil
	}
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("bad bit width %q", s)
	}
	if n == 0 || uint(n) > max {
		return 0, fmt.Errorf("bit width %d out of range (1..%d)", n, max)
	}
	return uint(n), nil
}
