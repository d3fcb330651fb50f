package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"xdao.co/certanchor/logger"
	"xdao.co/certanchor/storage/casregistry"
	"xdao.co/certanchor/storage/grpccas"

	_ "xdao.co/certanchor/storage/gateway"
	_ "xdao.co/certanchor/storage/ipfs"
	_ "xdao.co/certanchor/storage/localfs"
	_ "xdao.co/certanchor/storage/memcas"
)

func main() {
	fs := flag.NewFlagSet("certanchor-casgrpcd", flag.ExitOnError)
	listen := fs.String("listen", "127.0.0.1:7777", "listen address")
	backend := fs.String("backend", "localfs", "CAS backend name")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")
	maxMsg := fs.Int("max-msg-bytes", 8<<20, "Maximum gRPC message size")
	logLevel := fs.String("log-level", "info", "Log level")
	env := fs.String("env", os.Getenv("ENV"), "Environment (production selects JSON logs)")

	options := casregistry.BindFlags(fs, casregistry.UsageDaemon)

	_ = fs.Parse(os.Args[1:])
	if *listBackends {
		for _, b := range casregistry.List(casregistry.UsageDaemon) {
			_, _ = fmt.Fprintf(os.Stdout, "%s\t%s\n", b.Name, b.Description)
		}
		return
	}

	log, err := logger.New(*logLevel, *env)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	cas, closeFn, err := options.Open(*backend)
	if err != nil {
		log.Error("open backend", zap.String("backend", *backend), zap.Error(err))
		os.Exit(2)
	}
	if closeFn != nil {
		defer closeFn()
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		log.Error("listen", zap.String("addr", *listen), zap.Error(err))
		os.Exit(1)
	}
	defer lis.Close()

	s := grpc.NewServer(
		grpc.MaxRecvMsgSize(*maxMsg),
		grpc.MaxSendMsgSize(*maxMsg),
		grpc.UnaryInterceptor(grpccas.LoggingInterceptor(log)),
	)
	grpccas.RegisterDocumentStoreServer(s, &grpccas.Server{CAS: cas})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("shutting down")
		s.GracefulStop()
	}()

	log.Info("certanchor-casgrpcd listening", zap.String("addr", lis.Addr().String()), zap.String("backend", *backend))
	if err := s.Serve(lis); err != nil {
		log.Error("serve", zap.Error(err))
		os.Exit(1)
	}
}
