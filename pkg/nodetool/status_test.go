package nodetool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const sampleStatus = `Datacenter: dc1
===============
Status=Up/Down
|/ State=Normal/Leaving/Joining/Moving
--  Address          Load       Tokens       Owns (effective)  Host ID                               Rack
UN  11.111.111.111   100.2 KiB  256          33.3%              a6234243-8abd-435e-b822-838bc4749160  rac1
UN  11.111.111.112   98.1 KiB   256          33.3%              b7234243-8abd-435e-b822-838bc4749161  rac2
DN  11.111.111.115   95.4 KiB   256          33.4%              c8234243-8abd-435e-b822-838bc4749162  rac1
Datacenter: dc2
===============
--  Address          Load       Tokens       Owns (effective)  Host ID                               Rack
UN  11.111.111.116   99.0 KiB   256          16.6%              d9234243-8abd-435e-b822-838bc4749163  rac1
UN  11.111.111.119   97.2 KiB   256          16.7%              97123467-7dab-4a9e-bd44-5613ac419961  rac2
`

func TestParseNodetoolStatus(t *testing.T) {
	top := ParseNodetoolStatus(sampleStatus, "test_cluster", false, nil)

	assert.Equal(t, 5, top.Len())

	h, err := top.GetHost("11.111.111.111")
	assert.NoError(t, err)
	assert.Equal(t, "11.111.111.111", h.IP)
	assert.Equal(t, "a6234243-8abd-435e-b822-838bc4749160", h.HostID)

	down, err := top.GetHost("11.111.111.115")
	assert.NoError(t, err)
	assert.False(t, down.IsUp)

	up, err := top.GetHost("11.111.111.116")
	assert.NoError(t, err)
	assert.True(t, up.IsUp)

	dcHost, err := top.GetHost("11.111.111.112")
	assert.NoError(t, err)
	assert.Equal(t, "dc1", dcHost.DC)
	assert.Equal(t, "rac2", dcHost.Rack)

	last, err := top.GetHost("11.111.111.119")
	assert.NoError(t, err)
	assert.Equal(t, "97123467-7dab-4a9e-bd44-5613ac419961", last.HostID)
}

func TestParseNodetoolStatusResolvesHostnames(t *testing.T) {
	lookup := func(ip string) string { return "host-" + ip }
	top := ParseNodetoolStatus(sampleStatus, "test_cluster", true, lookup)

	h, err := top.GetHost("11.111.111.111")
	assert.NoError(t, err)
	assert.Equal(t, "host-11.111.111.111", h.FQDN)
}
