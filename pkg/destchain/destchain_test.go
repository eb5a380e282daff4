package destchain

import (
	"testing"

	"github.com/ethereum/go-ethereum/rpc"
)

func TestIsEVMSelector(t *testing.T) {
	cases := []struct {
		selector string
		want     bool
	}{
		{"", false},
		{"mainnet", false},
		{"devnet", false},
		{"1", true},
		{"56", true},
		{"1a", false},
	}
	for _, c := range cases {
		if got := IsEVMSelector(c.selector); got != c.want {
			t.Errorf("IsEVMSelector(%q) = %v, want %v", c.selector, got, c.want)
		}
	}
}

// newTestClient builds a Client with nil *rpc.Client values: resolve never
// dereferences them, it only picks which map entry to return, so this is
// enough to exercise the selector-routing logic without a live endpoint.
func newTestClient(clusters ...Cluster) *Client {
	byCluster := make(map[Cluster]*rpc.Client, len(clusters))
	for _, c := range clusters {
		byCluster[c] = nil
	}
	return &Client{byCluster: byCluster, defaultCluster: clusters[0]}
}

func TestResolve_DefaultsWhenSelectorEmpty(t *testing.T) {
	c := newTestClient(ClusterDevnet, ClusterMainnet)
	rc, err := c.resolve("")
	if err != nil {
		t.Fatalf("resolve(\"\"): %v", err)
	}
	if rc != c.byCluster[ClusterDevnet] {
		t.Fatal("resolve(\"\") did not pick the default cluster")
	}
}

func TestResolve_RejectsEVMSelector(t *testing.T) {
	c := newTestClient(ClusterDevnet)
	_, err := c.resolve("56")
	if err != ErrUnsupportedCluster {
		t.Fatalf("resolve(56) error = %v, want ErrUnsupportedCluster", err)
	}
}

func TestResolve_UnknownClusterErrors(t *testing.T) {
	c := newTestClient(ClusterDevnet)
	_, err := c.resolve("testnet")
	if err == nil {
		t.Fatal("expected an error for an unconfigured cluster")
	}
}

func TestResolve_NamedClusterSelectsItsOwnClient(t *testing.T) {
	c := newTestClient(ClusterDevnet, ClusterMainnet)
	rc, err := c.resolve(string(ClusterMainnet))
	if err != nil {
		t.Fatalf("resolve(mainnet): %v", err)
	}
	if rc != c.byCluster[ClusterMainnet] {
		t.Fatal("resolve(mainnet) did not pick the mainnet cluster")
	}
}
