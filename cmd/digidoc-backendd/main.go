package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"

	"google.golang.org/grpc"

	"xdao.co/digidoc/backend/grpcbackend"
	"xdao.co/digidoc/backend/memory"
	"xdao.co/digidoc/config"
	"xdao.co/digidoc/x509cert"
)

func main() {
	fs := flag.NewFlagSet("digidoc-backendd", flag.ExitOnError)
	listen := fs.String("listen", config.DefaultTarget, "listen address")
	configPath := fs.String("config", "", "JSON config file (ocsp and archive sections are used)")
	maxFileBytes := fs.Int64("max-file-bytes", 0, "Reject larger data files with status 413; 0 means no limit")
	maxMsgBytes := fs.Int("max-msg-bytes", 0, "Max gRPC message size in bytes (send+recv); 0 uses grpc defaults")
	verbose := fs.Bool("v", false, "Debug logging")
	var issuers []*x509cert.Certificate
	fs.Func("issuer", "Trusted issuer certificate for OCSP checks (repeatable)", func(path string) error {
		cert, err := config.LoadCertificate(path)
		if err != nil {
			return err
		}
		issuers = append(issuers, cert)
		return nil
	})

	_ = fs.Parse(os.Args[1:])

	var cfg config.Config
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFile(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}
	archive, err := cfg.OpenArchive()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	responder, err := cfg.Responder(archive)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	svc := memory.New()
	svc.MaxFileBytes = *maxFileBytes
	if responder != nil {
		if len(issuers) == 0 {
			fmt.Fprintln(os.Stderr, "ocsp is configured but no --issuer was given")
			os.Exit(2)
		}
		svc.Revocation = memory.OCSPChecker{Responder: responder, Issuers: issuers}
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer lis.Close()

	var opts []grpc.ServerOption
	if *maxMsgBytes > 0 {
		opts = append(opts, grpc.MaxRecvMsgSize(*maxMsgBytes), grpc.MaxSendMsgSize(*maxMsgBytes))
	}
	s := grpc.NewServer(opts...)
	grpcbackend.RegisterBackendServer(s, &grpcbackend.Server{Backend: svc, Logger: logger})

	fmt.Fprintf(os.Stderr, "digidoc-backendd listening on %s (ocsp=%t)\n", lis.Addr().String(), responder != nil)
	if err := s.Serve(lis); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
