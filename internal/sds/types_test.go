package sds

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keyProp() Property {
	return Property{ID: "Timestamp", Name: "Timestamp", IsKey: true, Kind: KindDateTime}
}

func TestNewType_Valid(t *testing.T) {
	typ, err := NewType("T1",
		keyProp(),
		Property{ID: "Value", Name: "Value", Kind: KindNullableSingle},
	)
	require.NoError(t, err)
	assert.Equal(t, "T1", typ.ID)
	assert.Equal(t, "T1", typ.Name)
	assert.Len(t, typ.Properties, 2)

	key, ok := typ.Key()
	require.True(t, ok)
	assert.Equal(t, "Timestamp", key.ID)
}

func TestNewType_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		props   []Property
		wantErr string
	}{
		{"empty id", "", []Property{keyProp()}, "type id is required"},
		{"no properties", "T1", nil, "at least one property"},
		{"no key", "T1", []Property{{ID: "Value", Kind: KindNullableSingle}}, "exactly one key property required, got 0"},
		{"two keys", "T1", []Property{keyProp(), {ID: "Other", IsKey: true, Kind: KindDateTime}}, "got 2"},
		{"non-time key", "T1", []Property{{ID: "Id", IsKey: true, Kind: KindString}}, "must be DateTime"},
		{"invalid kind", "T1", []Property{keyProp(), {ID: "X"}}, "invalid value kind"},
		{"duplicate id", "T1", []Property{keyProp(), {ID: "Timestamp", Kind: KindBoolean}}, "duplicate property id"},
		{"empty property id", "T1", []Property{keyProp(), {Kind: KindBoolean}}, "id is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewType(tt.id, tt.props...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewType_CopiesProperties(t *testing.T) {
	props := []Property{keyProp()}
	typ, err := NewType("T1", props...)
	require.NoError(t, err)

	props[0].ID = "Mutated"
	assert.Equal(t, "Timestamp", typ.Properties[0].ID)
}

func TestParseValueKind(t *testing.T) {
	for _, name := range []string{"DateTime", "NullableSingle", "Boolean", "String", "NullableInt32"} {
		k, err := ParseValueKind(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, k.String())
		assert.True(t, k.Valid())
	}

	_, err := ParseValueKind("Double")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown value kind "Double"`)
}

func TestValueKind_Codes(t *testing.T) {
	assert.Equal(t, 16, KindDateTime.Code())
	assert.Equal(t, 113, KindNullableSingle.Code())
	assert.Equal(t, 3, KindBoolean.Code())
	assert.Equal(t, 18, KindString.Code())
	assert.Equal(t, 109, KindNullableInt32.Code())
	assert.Equal(t, 0, KindInvalid.Code())

	assert.True(t, KindNullableInt32.Nullable())
	assert.False(t, KindBoolean.Nullable())
}

func TestType_WireShape(t *testing.T) {
	typ, err := NewType("T1", keyProp(), Property{ID: "Flag", Name: "Flag", Kind: KindBoolean})
	require.NoError(t, err)

	data, err := json.Marshal(typ)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "T1", raw["Id"])
	assert.Equal(t, float64(1), raw["SdsTypeCode"])

	props := raw["Properties"].([]any)
	require.Len(t, props, 2)
	first := props[0].(map[string]any)
	assert.Equal(t, true, first["IsKey"])
	assert.Equal(t, float64(16), first["SdsType"].(map[string]any)["SdsTypeCode"])

	var decoded Type
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, typ, decoded)
}

func TestType_DecodeUnknownCodeIsLenient(t *testing.T) {
	data := []byte(`{"Id":"Shared","SdsTypeCode":1,"Properties":[
		{"Id":"Timestamp","IsKey":true,"SdsType":{"Id":"DateTime","SdsTypeCode":16}},
		{"Id":"Reading","IsKey":false,"SdsType":{"Id":"Double","SdsTypeCode":14}}]}`)

	var typ Type
	require.NoError(t, json.Unmarshal(data, &typ))
	require.Len(t, typ.Properties, 2)
	assert.Equal(t, KindInvalid, typ.Properties[1].Kind)
	assert.Error(t, typ.Validate())

	out, err := json.Marshal(typ)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"SdsTypeCode":14`)
}

func TestStream_WireShape(t *testing.T) {
	data, err := json.Marshal(Stream{ID: "S1", TypeID: "T1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Id":"S1","TypeId":"T1"}`, string(data))
}

func TestParseOp(t *testing.T) {
	op, ok := ParseOp("delete_stream")
	assert.True(t, ok)
	assert.Equal(t, OpDeleteStream, op)

	_, ok = ParseOp("drop_table")
	assert.False(t, ok)
}
