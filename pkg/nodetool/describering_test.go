package nodetool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDescribeRing = `Schema Version:08428c1c-086b-322c-ae61-988129270360
TokenRange(start_token:-9223372036854775808, end_token:-3074457345618258603, endpoints:[127.0.0.1], endpoint_details:[endpoint_detail(host:127.0.0.1, datacenter:datacenter1, rack:rack1)])
TokenRange(start_token:-3074457345618258603, end_token:3074457345618258602, endpoints:[127.0.0.2, 3.4.5.6], endpoint_details:[endpoint_detail(host:127.0.0.2, datacenter:datacenter1, rack:rack1), endpoint_detail(host:3.4.5.6, datacenter:gew, rack:rac1)])
TokenRange(start_token:3074457345618258602, end_token:-9223372036854775808, endpoints:[3.4.5.6], endpoint_details:[endpoint_detail(host:3.4.5.6, datacenter:gew, rack:rac1)])
`

func TestParseDescribeRing(t *testing.T) {
	calls, err := ParseDescribeRing(sampleDescribeRing)
	require.NoError(t, err)
	require.Len(t, calls, 3)

	assert.Equal(t, int64(-3074457345618258603), calls[0].Arguments["end_token"])

	endpoints := calls[1].Arguments["endpoints"].([]interface{})
	assert.Equal(t, "3.4.5.6", endpoints[1])

	details := calls[1].Arguments["endpoint_details"].([]interface{})
	first := details[0].(Call)
	assert.Equal(t, "datacenter1", first.Arguments["datacenter"])
	assert.Equal(t, "rack1", first.Arguments["rack"])
}

func TestConvertToRangeMapping(t *testing.T) {
	calls, err := ParseDescribeRing(sampleDescribeRing)
	require.NoError(t, err)

	ranges := ConvertToRangeMapping(calls)
	require.Len(t, ranges, 3)
	assert.Equal(t, "-9223372036854775808", ranges[0].StartToken)
	assert.Equal(t, "-9223372036854775808", ranges[2].EndToken)
	assert.Equal(t, []string{"127.0.0.1"}, ranges[0].Endpoints)
}

var badSyntax = []string{
	"foo(3)",
	"foo([7)",
	"foo(3,",
	"foo(",
	"foo([1 1])",
	"foo([a:b])",
	"foo(bar [])",
}

func TestParseDescribeRingBadSyntax(t *testing.T) {
	for _, line := range badSyntax {
		_, err := ParseDescribeRing(line)
		assert.Error(t, err, "expected parse error for %q", line)
	}
}

func TestTokenizeCountsTokens(t *testing.T) {
	tokens, err := tokenize(`foo(bar: 1, baz: [1, 2, 3])`)
	require.NoError(t, err)
	assert.Len(t, tokens, 16)
}
