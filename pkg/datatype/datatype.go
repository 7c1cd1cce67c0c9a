// Package datatype describes the value types a topic can hold and how those
// values travel on the wire.
package datatype

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"google.golang.org/protobuf/types/known/structpb"
)

var (
	ErrInvalidValue    = errors.New("invalid value for data type")
	ErrUnknownDataType = errors.New("unknown data type")
)

// DataType converts between Go values and their wire representation.
type DataType interface {
	Name() string
	Encode(v any) (*structpb.Value, error)
	Decode(v *structpb.Value) (any, error)
}

var (
	STRING DataType = stringType{}
	INT64  DataType = int64Type{}
	DOUBLE DataType = doubleType{}
	JSON   DataType = jsonType{}
	BINARY DataType = binaryType{}
)

var byName = map[string]DataType{
	STRING.Name(): STRING,
	INT64.Name():  INT64,
	DOUBLE.Name(): DOUBLE,
	JSON.Name():   JSON,
	BINARY.Name(): BINARY,
}

// Get returns the data type registered under name.
func Get(name string) (DataType, error) {
	if dt, ok := byName[name]; ok {
		return dt, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDataType, name)
}

func invalid(dt DataType, v any) error {
	return fmt.Errorf("%w %s: %T", ErrInvalidValue, dt.Name(), v)
}

type stringType struct{}

func (stringType) Name() string { return "string" }

func (t stringType) Encode(v any) (*structpb.Value, error) {
	s, ok := v.(string)
	if !ok {
		return nil, invalid(t, v)
	}
	return structpb.NewStringValue(s), nil
}

func (t stringType) Decode(v *structpb.Value) (any, error) {
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return nil, invalid(t, v.GetKind())
	}
	return s.StringValue, nil
}

// int64 travels as a decimal string; a protobuf number is a double and would
// lose precision above 2^53.
type int64Type struct{}

func (int64Type) Name() string { return "int64" }

func (t int64Type) Encode(v any) (*structpb.Value, error) {
	var n int64
	switch x := v.(type) {
	case int64:
		n = x
	case int:
		n = int64(x)
	case int32:
		n = int64(x)
	default:
		return nil, invalid(t, v)
	}
	return structpb.NewStringValue(strconv.FormatInt(n, 10)), nil
}

func (t int64Type) Decode(v *structpb.Value) (any, error) {
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return nil, invalid(t, v.GetKind())
	}
	n, err := strconv.ParseInt(s.StringValue, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w int64: %v", ErrInvalidValue, err)
	}
	return n, nil
}

type doubleType struct{}

func (doubleType) Name() string { return "double" }

func (t doubleType) Encode(v any) (*structpb.Value, error) {
	switch x := v.(type) {
	case float64:
		return structpb.NewNumberValue(x), nil
	case float32:
		return structpb.NewNumberValue(float64(x)), nil
	default:
		return nil, invalid(t, v)
	}
}

func (t doubleType) Decode(v *structpb.Value) (any, error) {
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return nil, invalid(t, v.GetKind())
	}
	return n.NumberValue, nil
}

// JSON values are carried as JSON text. Encode accepts text, raw messages or
// any value encoding/json can marshal.
type jsonType struct{}

func (jsonType) Name() string { return "json" }

func (t jsonType) Encode(v any) (*structpb.Value, error) {
	var text []byte
	switch x := v.(type) {
	case string:
		text = []byte(x)
	case []byte:
		text = x
	case json.RawMessage:
		text = x
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return nil, fmt.Errorf("%w json: %v", ErrInvalidValue, err)
		}
		text = b
	}
	if !json.Valid(text) {
		return nil, fmt.Errorf("%w json: not valid JSON", ErrInvalidValue)
	}
	return structpb.NewStringValue(string(text)), nil
}

func (t jsonType) Decode(v *structpb.Value) (any, error) {
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok || !json.Valid([]byte(s.StringValue)) {
		return nil, invalid(t, v.GetKind())
	}
	return json.RawMessage(s.StringValue), nil
}

type binaryType struct{}

func (binaryType) Name() string { return "binary" }

func (t binaryType) Encode(v any) (*structpb.Value, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, invalid(t, v)
	}
	return structpb.NewStringValue(base64.StdEncoding.EncodeToString(b)), nil
}

func (t binaryType) Decode(v *structpb.Value) (any, error) {
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return nil, invalid(t, v.GetKind())
	}
	b, err := base64.StdEncoding.DecodeString(s.StringValue)
	if err != nil {
		return nil, fmt.Errorf("%w binary: %v", ErrInvalidValue, err)
	}
	return b, nil
}
