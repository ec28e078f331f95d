package oracle

import (
	"context"
	"errors"
	"time"

	"github.com/defistate/defistate-vault-go/engine"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
)

const (
	// RpcNamespace is the namespace under which the price API is registered.
	RpcNamespace   = "oracle"
	getPriceMethod = RpcNamespace + "_getPrice"

	defaultCallTimeout = 5 * time.Second
)

// API exposes a PriceOracle over JSON-RPC as oracle_getPrice.
type API struct {
	oracle PriceOracle
}

// NewAPI wraps o for registration with an rpc.Server under RpcNamespace.
func NewAPI(o PriceOracle) *API {
	return &API{oracle: o}
}

// GetPrice returns the price of asset.
func (api *API) GetPrice(ctx context.Context, asset engine.AssetID) (*uint256.Int, error) {
	price, err := api.oracle.Price(ctx, asset)
	if err != nil {
		return nil, engine.ToWire(err)
	}
	return price, nil
}

// RPCOracleConfig configures an RPCOracle.
type RPCOracleConfig struct {
	// Client is an established connection to a server exposing API.
	Client *rpc.Client
	// CallTimeout bounds each price query. Defaults to 5s.
	CallTimeout time.Duration
}

func (c *RPCOracleConfig) validate() error {
	if c.Client == nil {
		return errors.New("config: Client is required")
	}
	if c.CallTimeout < 0 {
		return errors.New("config: CallTimeout cannot be negative")
	}
	return nil
}

// RPCOracle queries prices from a remote oracle_getPrice endpoint.
type RPCOracle struct {
	client  *rpc.Client
	timeout time.Duration
}

// NewRPCOracle creates an oracle backed by a JSON-RPC connection.
func NewRPCOracle(cfg *RPCOracleConfig) (*RPCOracle, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	timeout := cfg.CallTimeout
	if timeout == 0 {
		timeout = defaultCallTimeout
	}
	return &RPCOracle{client: cfg.Client, timeout: timeout}, nil
}

// DialRPCOracle connects to url and returns an oracle using the connection.
func DialRPCOracle(ctx context.Context, url string, timeout time.Duration) (*RPCOracle, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	o, err := NewRPCOracle(&RPCOracleConfig{Client: client, CallTimeout: timeout})
	if err != nil {
		client.Close()
		return nil, err
	}
	return o, nil
}

// Price implements PriceOracle.
func (o *RPCOracle) Price(ctx context.Context, asset engine.AssetID) (*uint256.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	var price *uint256.Int
	if err := o.client.CallContext(ctx, &price, getPriceMethod, asset); err != nil {
		return nil, engine.FromWire(err)
	}
	if price == nil {
		return nil, engine.ErrPriceUnavailable
	}
	return price, nil
}

// Close releases the underlying connection.
func (o *RPCOracle) Close() {
	o.client.Close()
}
