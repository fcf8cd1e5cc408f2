package router

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteIsDeterministic(t *testing.T) {
	eps := []string{"grpc://a:1", "grpc://b:1", "grpc://c:1"}
	r1, err := NewRing(eps)
	require.NoError(t, err)
	r2, err := NewRing(eps)
	require.NoError(t, err)
	for i := 0; i < 500; i++ {
		k := ChannelKey("app", fmt.Sprintf("chan-%d", i))
		assert.Equal(t, r1.Route(k), r2.Route(k))
	}
}

func TestRouteSpreadsKeys(t *testing.T) {
	eps := []string{"a", "b", "c", "d"}
	r, err := NewRing(eps)
	require.NoError(t, err)
	counts := map[string]int{}
	for i := 0; i < 4000; i++ {
		counts[r.Route(fmt.Sprintf("app::c%d", i))]++
	}
	for _, ep := range eps {
		assert.Greater(t, counts[ep], 500, "endpoint %s underused: %v", ep, counts)
	}
}

func TestAddingEndpointRemapsFraction(t *testing.T) {
	before, err := NewRing([]string{"a", "b", "c"})
	require.NoError(t, err)
	after, err := NewRing([]string{"a", "b", "c", "d"})
	require.NoError(t, err)

	moved := 0
	const n = 4000
	for i := 0; i < n; i++ {
		k := fmt.Sprintf("app::k%d", i)
		from, to := before.Route(k), after.Route(k)
		if from != to {
			moved++
			assert.Equal(t, "d", to, "keys only move to the new endpoint")
		}
	}
	assert.Less(t, moved, n/2)
	assert.Greater(t, moved, 0)
}

func TestSingleEndpointAndDuplicates(t *testing.T) {
	r, err := NewRing([]string{"only", "only", ""})
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, r.Endpoints())
	assert.Equal(t, "only", r.Route("anything"))
}

func TestNoEndpoints(t *testing.T) {
	_, err := NewRing(nil)
	assert.ErrorIs(t, err, ErrNoEndpoints)
}

func TestChannelKey(t *testing.T) {
	assert.Equal(t, "app::lobby", ChannelKey("app", "lobby"))
}
