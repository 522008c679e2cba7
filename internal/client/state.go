package client

// ConnectionState names the viewer's reconciliation states. The machine
// is long-lived: there is no terminal state short of Stop.
type ConnectionState string

const (
	// StateBootstrapping: reading the durable local cache, nothing shown yet
	StateBootstrapping ConnectionState = "bootstrapping"
	// StateLocalCacheWarm: rendering a fresh local cache entry, network pending
	StateLocalCacheWarm ConnectionState = "local_cache_warm"
	// StateLocalCacheCold: no usable local cache, waiting for first network data
	StateLocalCacheCold ConnectionState = "local_cache_cold"
	// StateConnected: live channel up and at least one valid update applied
	StateConnected ConnectionState = "connected"
	// StateDisconnectedRetaining: channel down, last good list still displayed
	StateDisconnectedRetaining ConnectionState = "disconnected_retaining"
	// StateReconnecting: channel re-established, awaiting the first valid push
	StateReconnecting ConnectionState = "reconnecting"
)
