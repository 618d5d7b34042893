package httpclient

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProvider_GenerationAdvancesOnPolicyChange(t *testing.T) {
	p := NewProvider(false, false, nil)
	defer p.Close()

	first := p.Generation()
	client := p.Client()

	p.SetProxyPolicy(false)
	require.Equal(t, first, p.Generation())
	require.Same(t, client, p.Client())

	p.SetProxyPolicy(true)
	require.Equal(t, first+1, p.Generation())
	require.NotSame(t, client, p.Client())
}

func TestProvider_DialerFollowsPolicy(t *testing.T) {
	p := NewProvider(false, false, nil)
	defer p.Close()
	require.Nil(t, p.Dialer().Proxy)

	p.SetProxyPolicy(true)
	require.NotNil(t, p.Dialer().Proxy)
}
