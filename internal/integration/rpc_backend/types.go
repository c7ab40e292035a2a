package rpc_backend

import "time"

// ClientConfig describes how to reach a Stellar RPC server
type ClientConfig struct {
	Endpoint          string
	BufferSize        int
	NetworkPassphrase string

	// Timeout bounds each HTTP request made by the backend
	Timeout time.Duration
}
