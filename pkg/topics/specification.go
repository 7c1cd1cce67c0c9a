// Package topics defines topic types, specifications and paths.
package topics

import (
	"errors"
	"fmt"
	"maps"
	"strconv"
	"time"

	"github.com/AmyangXYZ/rtseries/pkg/datatype"
	"google.golang.org/protobuf/types/known/structpb"
)

var ErrInvalidSpecification = errors.New("invalid topic specification")

type TopicType string

const (
	STRING      TopicType = "STRING"
	INT64       TopicType = "INT64"
	DOUBLE      TopicType = "DOUBLE"
	JSON        TopicType = "JSON"
	BINARY      TopicType = "BINARY"
	TIME_SERIES TopicType = "TIME_SERIES"
)

var scalarTypes = map[TopicType]datatype.DataType{
	STRING: datatype.STRING,
	INT64:  datatype.INT64,
	DOUBLE: datatype.DOUBLE,
	JSON:   datatype.JSON,
	BINARY: datatype.BINARY,
}

const (
	// PropertyRetainedRange bounds how many events a time series keeps.
	PropertyRetainedRange = "TIME_SERIES_RETAINED_RANGE"
	// PropertyRemoval is a Go duration after which the topic is removed.
	PropertyRemoval = "REMOVAL"
)

type AddResult string

const (
	CREATED AddResult = "CREATED"
	EXISTS  AddResult = "EXISTS"
)

type Specification struct {
	Type       TopicType
	ValueType  string
	Properties map[string]string
}

func Of(topicType TopicType) Specification {
	spec := Specification{Type: topicType}
	if dt, ok := scalarTypes[topicType]; ok {
		spec.ValueType = dt.Name()
	}
	return spec
}

// TimeSeriesOf specifies a time series whose events hold dt values.
func TimeSeriesOf(dt datatype.DataType) Specification {
	return Specification{Type: TIME_SERIES, ValueType: dt.Name()}
}

// WithProperties returns a copy of s with props merged in.
func (s Specification) WithProperties(props map[string]string) Specification {
	merged := make(map[string]string, len(s.Properties)+len(props))
	maps.Copy(merged, s.Properties)
	maps.Copy(merged, props)
	s.Properties = merged
	return s
}

func (s Specification) DataType() (datatype.DataType, error) {
	return datatype.Get(s.ValueType)
}

func (s Specification) IsTimeSeries() bool {
	return s.Type == TIME_SERIES
}

func (s Specification) Validate() error {
	if s.Type == TIME_SERIES {
		if _, err := datatype.Get(s.ValueType); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSpecification, err)
		}
	} else if dt, ok := scalarTypes[s.Type]; !ok {
		return fmt.Errorf("%w: unknown topic type %q", ErrInvalidSpecification, s.Type)
	} else if s.ValueType != dt.Name() {
		return fmt.Errorf("%w: %s topics hold %s values, not %q", ErrInvalidSpecification, s.Type, dt.Name(), s.ValueType)
	}

	for key, value := range s.Properties {
		switch key {
		case PropertyRetainedRange:
			if s.Type != TIME_SERIES {
				return fmt.Errorf("%w: %s only applies to time series", ErrInvalidSpecification, key)
			}
			if n, err := strconv.Atoi(value); err != nil || n <= 0 {
				return fmt.Errorf("%w: %s must be a positive integer", ErrInvalidSpecification, key)
			}
		case PropertyRemoval:
			if d, err := time.ParseDuration(value); err != nil || d <= 0 {
				return fmt.Errorf("%w: %s must be a positive duration", ErrInvalidSpecification, key)
			}
		default:
			return fmt.Errorf("%w: unsupported property %q", ErrInvalidSpecification, key)
		}
	}
	return nil
}

// RetainedRange returns the event limit, or 0 for unbounded.
func (s Specification) RetainedRange() int {
	n, _ := strconv.Atoi(s.Properties[PropertyRetainedRange])
	return n
}

// Removal returns the automatic removal delay, or 0 if none.
func (s Specification) Removal() time.Duration {
	d, _ := time.ParseDuration(s.Properties[PropertyRemoval])
	return d
}

// Equal reports whether two specifications are interchangeable. Adding a
// topic that exists with an equal specification is not an error.
func (s Specification) Equal(o Specification) bool {
	if s.Type != o.Type || s.ValueType != o.ValueType || len(s.Properties) != len(o.Properties) {
		return false
	}
	return maps.Equal(s.Properties, o.Properties)
}

func (s Specification) String() string {
	if s.Type == TIME_SERIES {
		return fmt.Sprintf("%s<%s>%v", s.Type, s.ValueType, s.Properties)
	}
	return fmt.Sprintf("%s%v", s.Type, s.Properties)
}

func (s Specification) ToStruct() *structpb.Struct {
	props := make(map[string]*structpb.Value, len(s.Properties))
	for k, v := range s.Properties {
		props[k] = structpb.NewStringValue(v)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"type":       structpb.NewStringValue(string(s.Type)),
		"value_type": structpb.NewStringValue(s.ValueType),
		"properties": structpb.NewStructValue(&structpb.Struct{Fields: props}),
	}}
}

func FromStruct(st *structpb.Struct) (Specification, error) {
	if st == nil {
		return Specification{}, fmt.Errorf("%w: missing", ErrInvalidSpecification)
	}
	fields := st.GetFields()
	spec := Specification{
		Type:      TopicType(fields["type"].GetStringValue()),
		ValueType: fields["value_type"].GetStringValue(),
	}
	if props := fields["properties"].GetStructValue().GetFields(); len(props) > 0 {
		spec.Properties = make(map[string]string, len(props))
		for k, v := range props {
			s, ok := v.GetKind().(*structpb.Value_StringValue)
			if !ok {
				return Specification{}, fmt.Errorf("%w: property %q is not a string", ErrInvalidSpecification, k)
			}
			spec.Properties[k] = s.StringValue
		}
	}
	return spec, nil
}
