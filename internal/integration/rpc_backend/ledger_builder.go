package rpc_backend

import (
	"fmt"
	"net/http"

	"github.com/stellar/go/clients/rpcclient"
	"github.com/stellar/go/ingest/ledgerbackend"
)

type LedgerBuilder struct {
	ClientConfig ClientConfig
}

// Build will create a new ledgerbackend.RPCLedgerBackend from ClientConfig
func (lb *LedgerBuilder) Build() (*ledgerbackend.RPCLedgerBackend, error) {
	backendOptions, err := lb.newBackendOptions()
	if err != nil {
		return nil, err
	}

	return ledgerbackend.NewRPCLedgerBackend(*backendOptions), nil
}

// BuildClient creates a plain RPC client for health and tip queries
func (lb *LedgerBuilder) BuildClient() (*rpcclient.Client, error) {
	if err := lb.validate(); err != nil {
		return nil, err
	}
	return rpcclient.NewClient(lb.ClientConfig.Endpoint, lb.httpClient()), nil
}

// newBackendOptions will create a new backend options object from the client config
func (lb *LedgerBuilder) newBackendOptions() (*ledgerbackend.RPCLedgerBackendOptions, error) {
	if err := lb.validate(); err != nil {
		return nil, err
	}

	bufferSize := lb.ClientConfig.BufferSize
	if bufferSize <= 0 {
		bufferSize = 10
	}

	return &ledgerbackend.RPCLedgerBackendOptions{
		RPCServerURL: lb.ClientConfig.Endpoint,
		BufferSize:   uint32(bufferSize),
		HttpClient:   lb.httpClient(),
	}, nil
}

func (lb *LedgerBuilder) validate() error {
	if lb.ClientConfig.Endpoint == "" {
		return fmt.Errorf("ClientConfig.Endpoint value is empty, please provide a valid endpoint")
	}
	return nil
}

func (lb *LedgerBuilder) httpClient() *http.Client {
	return &http.Client{Timeout: lb.ClientConfig.Timeout}
}
