package sds

import "fmt"

// ValueKind is the closed set of property value types the harness declares.
type ValueKind int

const (
	// KindInvalid is the zero value and never valid in a Type.
	KindInvalid ValueKind = iota
	KindDateTime
	KindNullableSingle
	KindBoolean
	KindString
	KindNullableInt32
)

// SDS wire type codes.
const (
	codeBoolean        = 3
	codeDateTime       = 16
	codeString         = 18
	codeNullableInt32  = 109
	codeNullableSingle = 113
)

var kindNames = map[ValueKind]string{
	KindDateTime:       "DateTime",
	KindNullableSingle: "NullableSingle",
	KindBoolean:        "Boolean",
	KindString:         "String",
	KindNullableInt32:  "NullableInt32",
}

var kindCodes = map[ValueKind]int{
	KindDateTime:       codeDateTime,
	KindNullableSingle: codeNullableSingle,
	KindBoolean:        codeBoolean,
	KindString:         codeString,
	KindNullableInt32:  codeNullableInt32,
}

// ParseValueKind resolves a kind by name. Unknown names are rejected here so
// a bad declaration fails at schema construction, not at submission.
func ParseValueKind(name string) (ValueKind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return KindInvalid, fmt.Errorf("unknown value kind %q", name)
}

// KindFromCode maps an SDS type code back to a ValueKind.
func KindFromCode(code int) (ValueKind, error) {
	for k, c := range kindCodes {
		if c == code {
			return k, nil
		}
	}
	return KindInvalid, fmt.Errorf("unsupported type code %d", code)
}

// Valid reports whether k is one of the declared kinds.
func (k ValueKind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// String returns the SDS type name (also used as the nested type id).
func (k ValueKind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("ValueKind(%d)", int(k))
}

// Code returns the SDS type code, or 0 for an invalid kind.
func (k ValueKind) Code() int {
	return kindCodes[k]
}

// Nullable reports whether values of this kind may be absent.
func (k ValueKind) Nullable() bool {
	return k == KindNullableSingle || k == KindNullableInt32
}

// MarshalText encodes the kind by name so YAML and JSON carry readable kinds.
func (k ValueKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid value kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *ValueKind) UnmarshalText(text []byte) error {
	parsed, err := ParseValueKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
