package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"xdao.co/certanchor/anchor"
	"xdao.co/certanchor/api"
	"xdao.co/certanchor/chain"
	"xdao.co/certanchor/compliance"
	"xdao.co/certanchor/config"
	"xdao.co/certanchor/contract"
	"xdao.co/certanchor/events"
	"xdao.co/certanchor/keys"
	"xdao.co/certanchor/lifecycle"
	"xdao.co/certanchor/recordstore"
	"xdao.co/certanchor/resolver"
	"xdao.co/certanchor/stats"
	"xdao.co/certanchor/storage/casregistry"

	_ "xdao.co/certanchor/storage/gateway"
	_ "xdao.co/certanchor/storage/grpccas"
	_ "xdao.co/certanchor/storage/ipfs"
	_ "xdao.co/certanchor/storage/localfs"
	_ "xdao.co/certanchor/storage/memcas"
)

type app struct {
	api     *api.Server
	closers []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// build wires every component from cfg. On error everything opened so far
// is closed.
func build(ctx context.Context, cfg config.Config, log *zap.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	binding := contract.Default()
	if cfg.Chain.ABIFile != "" {
		if binding, err = contract.Load(cfg.Chain.ABIFile); err != nil {
			return nil, fmt.Errorf("load abi: %w", err)
		}
	}
	mode, err := compliance.ParseMode(cfg.Chain.Compliance)
	if err != nil {
		return nil, err
	}

	cas, closeCAS, err := cfg.CAS.Open(casregistry.UsageDaemon, "")
	if err != nil {
		return nil, fmt.Errorf("open cas: %w", err)
	}
	if closeCAS != nil {
		a.closers = append(a.closers, closeCAS)
	}

	var store recordstore.Store
	switch cfg.Records.Driver {
	case config.DriverPostgres:
		sql, err := recordstore.OpenPostgres(cfg.Records.DSN, recordstore.PoolConfig{
			MaxIdleConns:    cfg.Records.MaxIdleConns,
			MaxOpenConns:    cfg.Records.MaxOpenConns,
			ConnMaxLifetime: cfg.Records.ConnMaxLifetime.Std(),
		}, log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, sql.Close)
		store = sql
	default:
		store = recordstore.NewClient(cfg.Records.BaseURL, cfg.Records.Token)
	}

	eth, err := ethclient.DialContext(ctx, cfg.Chain.ReadRPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial read rpc: %w", err)
	}
	a.closers = append(a.closers, func() error { eth.Close(); return nil })

	res, err := resolver.New(resolver.Config{
		Caller:          eth,
		ContractAddress: cfg.Chain.ContractAddress,
		Binding:         binding,
		CAS:             cas,
		Options:         resolver.Options{Mode: mode},
		Logger:          log,
	})
	if err != nil {
		return nil, err
	}

	var wallet chain.Provider
	if cfg.Chain.WalletRPCURL != "" {
		p, err := chain.DialRPC(ctx, cfg.Chain.WalletRPCURL)
		if err != nil {
			return nil, fmt.Errorf("dial wallet rpc: %w", err)
		}
		a.closers = append(a.closers, func() error { p.Close(); return nil })
		wallet = p
	} else {
		log.Warn("no wallet rpc configured; sign requests will fail")
	}

	var pub events.Publisher = events.Nop{}
	if cfg.Kafka.Enabled() {
		kp, err := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.Topic,
			Username: cfg.Kafka.Username,
			Password: cfg.Kafka.Password,
			TLS:      cfg.Kafka.TLS,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, kp.Close)
		pub = kp
	}

	var signers lifecycle.SignerSource
	if cfg.Keys.Root != "" {
		ks, err := keys.OpenKeyStore(cfg.Keys.Directory)
		if err != nil {
			return nil, err
		}
		signers = lifecycle.KeyStoreSigners{Keys: ks, Root: cfg.Keys.Root, Alg: cfg.Keys.Alg, HashAlg: cfg.Keys.HashAlg}
	}

	orch := lifecycle.New(lifecycle.Config{
		Store: store,
		Anchor: anchor.New(anchor.Config{
			Network:         cfg.Chain.Network,
			ContractAddress: cfg.Chain.ContractAddress,
			Binding:         binding,
			PollInterval:    cfg.Chain.PollInterval.Std(),
			ReceiptTimeout:  cfg.Chain.ReceiptTimeout.Std(),
			Logger:          log,
		}),
		CAS:     cas,
		Signers: signers,
		Events:  pub,
		Logger:  log,
	})

	a.api = api.New(api.Config{
		Lifecycle: orch,
		Resolver:  res,
		Stats:     stats.New(store, log),
		Wallet:    wallet,
		Auth:      api.Auth{Secret: cfg.Auth.JWTSecret, Issuer: cfg.Auth.Issuer},
		Logger:    log,
	})
	return a, nil
}
