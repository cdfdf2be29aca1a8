package chain

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestTransport(urls ...string) *Transport {
	t := &Transport{
		logger: zerolog.Nop(),
		health: make(map[string]bool, len(urls)),
	}
	for _, u := range urls {
		t.endpoints = append(t.endpoints, &endpoint{url: u})
		t.health[u] = true
	}
	return t
}

func TestCurrentEndpoint_PrefersFirstHealthyInPriorityOrder(t *testing.T) {
	tr := newTestTransport("a", "b", "c")
	tr.health["a"] = false

	got := tr.currentEndpoint()
	require.Equal(t, "b", got.url)
}

func TestCurrentEndpoint_FallsBackToFirstWhenNoneHealthy(t *testing.T) {
	tr := newTestTransport("a", "b")
	tr.health["a"] = false
	tr.health["b"] = false

	got := tr.currentEndpoint()
	require.Equal(t, "a", got.url)
}

func TestCurrentEndpoint_ReturnsOnlyHealthyEndpoint(t *testing.T) {
	tr := newTestTransport("a", "b", "c")
	tr.health["a"] = false
	tr.health["b"] = false

	got := tr.currentEndpoint()
	require.Equal(t, "c", got.url)
}
