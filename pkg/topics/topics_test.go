package topics

import (
	"testing"
	"time"

	"github.com/AmyangXYZ/rtseries/pkg/datatype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicPath(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 45, 123456789, time.FixedZone("CET", 3600))
	path := TopicPath("time-series", datatype.STRING, ts)

	assert.Equal(t, "time-series/string/2024-03-01 11:30:45.123456789", path)
	assert.NoError(t, ValidatePath(path))
}

func TestTopicPathsAtDifferentInstantsDiffer(t *testing.T) {
	base := time.Now()
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		path := TopicPath("time-series", datatype.STRING, base.Add(time.Duration(i)))
		require.False(t, seen[path], "collision for %s", path)
		seen[path] = true
	}
}

func TestValidatePath(t *testing.T) {
	valid := []string{"a", "a/b/c", "time-series/string/2024-01-01 00:00:00.000000000"}
	for _, p := range valid {
		assert.NoError(t, ValidatePath(p), p)
	}

	invalid := []string{"", "/a", "a/", "a//b", "a/\x00b"}
	for _, p := range invalid {
		assert.ErrorIs(t, ValidatePath(p), ErrInvalidPath, p)
	}
}

func TestMatches(t *testing.T) {
	assert.True(t, Matches("a/b", "a/b"))
	assert.True(t, Matches("a/b", "a/b/c"))
	assert.False(t, Matches("a/b", "a/bc"))
	assert.False(t, Matches("a/b", "a"))
}

func TestSpecificationValidate(t *testing.T) {
	assert.NoError(t, TimeSeriesOf(datatype.STRING).Validate())
	assert.NoError(t, Of(DOUBLE).Validate())
	assert.NoError(t, TimeSeriesOf(datatype.INT64).WithProperties(map[string]string{
		PropertyRetainedRange: "10",
		PropertyRemoval:       "1m",
	}).Validate())

	bad := []Specification{
		{Type: "RECORD"},
		{Type: TIME_SERIES, ValueType: "nope"},
		{Type: STRING, ValueType: "double"},
		Of(STRING).WithProperties(map[string]string{PropertyRetainedRange: "10"}),
		TimeSeriesOf(datatype.STRING).WithProperties(map[string]string{PropertyRetainedRange: "-1"}),
		TimeSeriesOf(datatype.STRING).WithProperties(map[string]string{PropertyRemoval: "soon"}),
		TimeSeriesOf(datatype.STRING).WithProperties(map[string]string{"PUBLISH_VALUES_ONLY": "true"}),
	}
	for _, spec := range bad {
		assert.ErrorIs(t, spec.Validate(), ErrInvalidSpecification, spec.String())
	}
}

func TestSpecificationEqualIgnoresEmptyProperties(t *testing.T) {
	a := TimeSeriesOf(datatype.STRING)
	b := TimeSeriesOf(datatype.STRING).WithProperties(nil)
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(TimeSeriesOf(datatype.DOUBLE)))
	assert.False(t, a.Equal(a.WithProperties(map[string]string{PropertyRetainedRange: "5"})))
}

func TestSpecificationStruct(t *testing.T) {
	spec := TimeSeriesOf(datatype.STRING).WithProperties(map[string]string{PropertyRetainedRange: "3"})

	decoded, err := FromStruct(spec.ToStruct())
	require.NoError(t, err)
	assert.True(t, spec.Equal(decoded))
	assert.Equal(t, 3, decoded.RetainedRange())

	_, err = FromStruct(nil)
	assert.ErrorIs(t, err, ErrInvalidSpecification)
}
