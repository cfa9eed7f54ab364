package addressspace

import (
	"reflect"
	"time"

	"github.com/awcullen/opcua/ua"
	"github.com/google/uuid"
)

// maxSuperTypeDepth bounds the walk up a data type hierarchy.
const maxSuperTypeDepth = 32

func isSigned(v any) bool {
	switch v.(type) {
	case int8, int16, int32, int64:
		return true
	}
	return false
}

func isUnsigned(v any) bool {
	switch v.(type) {
	case uint8, uint16, uint32, uint64:
		return true
	}
	return false
}

func isNumber(v any) bool {
	switch v.(type) {
	case float32, float64:
		return true
	}
	return isSigned(v) || isUnsigned(v)
}

func is[T any](v any) bool {
	_, ok := v.(T)
	return ok
}

func anyValue(any) bool { return true }

// builtinTypes maps the namespace 0 data types to the Go type check and zero value of
// their values. Data types outside the table resolve through their supertypes.
var builtinTypes = map[ua.NodeID]struct {
	check func(any) bool
	zero  any
}{
	ua.DataTypeIDBoolean:        {is[bool], false},
	ua.DataTypeIDSByte:          {is[int8], int8(0)},
	ua.DataTypeIDByte:           {is[uint8], uint8(0)},
	ua.DataTypeIDInt16:          {is[int16], int16(0)},
	ua.DataTypeIDUInt16:         {is[uint16], uint16(0)},
	ua.DataTypeIDInt32:          {is[int32], int32(0)},
	ua.DataTypeIDUInt32:         {is[uint32], uint32(0)},
	ua.DataTypeIDInt64:          {is[int64], int64(0)},
	ua.DataTypeIDUInt64:         {is[uint64], uint64(0)},
	ua.DataTypeIDFloat:          {is[float32], float32(0)},
	ua.DataTypeIDDouble:         {is[float64], float64(0)},
	ua.DataTypeIDDuration:       {is[float64], float64(0)},
	ua.DataTypeIDString:         {is[string], ""},
	ua.DataTypeIDDateTime:       {is[time.Time], time.Time{}},
	ua.DataTypeIDGUID:           {is[uuid.UUID], uuid.UUID{}},
	ua.DataTypeIDByteString:     {is[ua.ByteString], ua.ByteString("")},
	ua.DataTypeIDXMLElement:     {is[ua.XMLElement], ua.XMLElement("")},
	ua.DataTypeIDNodeID:         {is[ua.NodeID], ua.NodeIDNumeric{}},
	ua.DataTypeIDExpandedNodeID: {is[ua.ExpandedNodeID], ua.ExpandedNodeID{}},
	ua.DataTypeIDStatusCode:     {is[ua.StatusCode], ua.Good},
	ua.DataTypeIDQualifiedName:  {is[ua.QualifiedName], ua.QualifiedName{}},
	ua.DataTypeIDLocalizedText:  {is[ua.LocalizedText], ua.LocalizedText{}},
	ua.DataTypeIDNumber:         {isNumber, float64(0)},
	ua.DataTypeIDInteger:        {isSigned, int64(0)},
	ua.DataTypeIDUInteger:       {isUnsigned, uint64(0)},
	ua.DataTypeIDEnumeration:    {is[int32], int32(0)},
	ua.DataTypeIDStructure:      {anyValue, nil},
	ua.DataTypeIDBaseDataType:   {anyValue, nil},
}

// resolveBuiltin walks the supertypes of dataType until it reaches a built-in data
// type. Unresolvable data types behave as BaseDataType.
func resolveBuiltin(dataType ua.NodeID, r DataTypeResolver) ua.NodeID {
	for i := 0; dataType != nil && i < maxSuperTypeDepth; i++ {
		if _, ok := builtinTypes[dataType]; ok {
			return dataType
		}
		if r == nil {
			break
		}
		dataType = r.SuperType(dataType)
	}
	return ua.DataTypeIDBaseDataType
}

// zeroValue returns the value a variable of the data type starts with. Arrays start as
// empty slices of the element type.
func zeroValue(dataType ua.NodeID, valueRank int32, r DataTypeResolver) any {
	zero := builtinTypes[resolveBuiltin(dataType, r)].zero
	if valueRank < 0 {
		return zero
	}
	if zero == nil {
		return []any{}
	}
	return reflect.MakeSlice(reflect.SliceOf(reflect.TypeOf(zero)), 0, 0).Interface()
}

// checkValue reports whether v may be stored in a variable of the data type and value rank.
func checkValue(v any, dataType ua.NodeID, valueRank int32, r DataTypeResolver) bool {
	check := builtinTypes[resolveBuiltin(dataType, r)].check
	switch {
	case valueRank == ua.ValueRankScalar:
		return check(v)
	case valueRank >= 0:
		return checkSlice(v, check)
	default:
		return check(v) || checkSlice(v, check)
	}
}

func checkSlice(v any, check func(any) bool) bool {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return false
	}
	elem := rv.Type().Elem()
	if elem.Kind() != reflect.Interface && !check(reflect.Zero(elem).Interface()) {
		return false
	}
	for i := 0; i < rv.Len(); i++ {
		if !check(rv.Index(i).Interface()) {
			return false
		}
	}
	return true
}
