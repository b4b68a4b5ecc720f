package main

import (
	"encoding/asn1"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"xdao.co/digidoc/config"
	"xdao.co/digidoc/encoding/b64"
	"xdao.co/digidoc/ocsp"
	"xdao.co/digidoc/x509cert"
)

func cmdB64(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 || len(args) > 2 {
		fmt.Fprintln(errOut, "usage: digidoc b64 encode|decode [<file>|-]")
		return 2
	}
	path := ""
	if len(args) == 2 {
		path = args[1]
	}
	data, err := readInput(path)
	if err != nil {
		fmt.Fprintf(errOut, "read input: %v\n", err)
		return 1
	}
	switch args[0] {
	case "encode":
		_, _ = io.WriteString(out, b64.EncodeToString(data))
		return 0
	case "decode":
		raw, err := b64.DecodeString(string(data))
		if err != nil {
			fmt.Fprintf(errOut, "decode: %v\n", err)
			return 1
		}
		_, _ = out.Write(raw)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown b64 subcommand: %s\n", args[0])
		return 2
	}
}

func loadCert(path string, body bool) (*x509cert.Certificate, error) {
	if !body {
		return config.LoadCertificate(path)
	}
	data, err := readInput(path)
	if err != nil {
		return nil, err
	}
	return x509cert.FromPEMWithoutWrappers(string(data))
}

func oidName(oid asn1.ObjectIdentifier) string {
	if name, err := x509cert.Names.Name(oid); err == nil {
		return fmt.Sprintf("%s (%s)", name, oid)
	}
	return oid.String()
}

func cmdCert(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 || args[0] != "inspect" {
		fmt.Fprintln(errOut, "usage: digidoc cert inspect [--body] <file>")
		return 2
	}
	fs := flag.NewFlagSet("cert inspect", flag.ContinueOnError)
	fs.SetOutput(errOut)
	body := fs.Bool("body", false, "Input is a PEM body without BEGIN/END lines")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: digidoc cert inspect [--body] <file>")
		return 2
	}
	cert, err := loadCert(fs.Arg(0), *body)
	if err != nil {
		fmt.Fprintf(errOut, "invalid certificate: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Subject: %s\n", cert.Subject)
	fmt.Fprintf(out, "Issuer: %s\n", cert.Issuer)
	fmt.Fprintf(out, "Serial: %s\n", cert.SerialHex())
	fmt.Fprintf(out, "Not before: %s\n", cert.NotBefore.UTC().Format(time.RFC3339))
	fmt.Fprintf(out, "Not after: %s\n", cert.NotAfter.UTC().Format(time.RFC3339))
	fmt.Fprintf(out, "Signature algorithm: %s\n", oidName(cert.SignatureAlgorithm))
	fmt.Fprintf(out, "Public key: %s\n", oidName(cert.PublicKeyAlgorithm))
	if alg, err := cert.DefaultAlgorithm(); err == nil {
		fmt.Fprintf(out, "Signs with: %s\n", alg.Name)
	}
	return 0
}

func cmdOCSP(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: digidoc ocsp <subcommand> ...")
		fmt.Fprintln(errOut, "subcommands: inspect, request, check")
		return 2
	}
	switch args[0] {
	case "inspect":
		return cmdOCSPInspect(args[1:], out, errOut)
	case "request":
		return cmdOCSPRequest(args[1:], out, errOut)
	case "check":
		return cmdOCSPCheck(args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown ocsp subcommand: %s\n", args[0])
		return 2
	}
}

func cmdOCSPInspect(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("ocsp inspect", flag.ContinueOnError)
	fs.SetOutput(errOut)
	signer := fs.String("signer", "", "Responder certificate to verify the response signature against")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: digidoc ocsp inspect [--signer <cert>] <response.der>")
		return 2
	}
	der, err := readInput(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read response: %v\n", err)
		return 1
	}
	resp, err := ocsp.Parse(der)
	var se *ocsp.StatusError
	if errors.As(err, &se) {
		fmt.Fprintf(out, "Status: %s\n", se.Code)
		return 1
	}
	if err != nil {
		fmt.Fprintf(errOut, "invalid response: %v\n", err)
		return 1
	}
	printResponse(out, resp)
	if *signer != "" {
		cert, err := config.LoadCertificate(*signer)
		if err != nil {
			fmt.Fprintf(errOut, "read --signer: %v\n", err)
			return 1
		}
		ok, err := resp.IsSignedBy(cert)
		if err != nil {
			fmt.Fprintf(errOut, "verify: %v\n", err)
			return 1
		}
		fmt.Fprintf(out, "Signed by %s: %t\n", cert.SubjectCommonName(), ok)
		if !ok {
			return 1
		}
	}
	return 0
}

func printResponse(out io.Writer, resp *ocsp.Response) {
	fmt.Fprintf(out, "Status: %s\n", resp.Status())
	fmt.Fprintf(out, "Responder: %s\n", resp.ResponderID)
	fmt.Fprintf(out, "Produced at: %s\n", resp.ProducedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(out, "Signature algorithm: %s\n", oidName(resp.SignatureAlgorithm))
	if nonce, ok := resp.Nonce(); ok {
		fmt.Fprintf(out, "Nonce: %s\n", strings.ToUpper(hex.EncodeToString(nonce)))
	}
	for _, s := range resp.Responses {
		fmt.Fprintf(out, "Certificate %X: %s", s.CertID.SerialNumber, s.Status)
		if s.Status == ocsp.Revoked {
			fmt.Fprintf(out, " at %s", s.RevocationTime.UTC().Format(time.RFC3339))
			if s.ReasonName != "" {
				fmt.Fprintf(out, " (%s)", s.ReasonName)
			}
		}
		fmt.Fprintln(out)
		fmt.Fprintf(out, "  This update: %s\n", s.ThisUpdate.UTC().Format(time.RFC3339))
		if !s.NextUpdate.IsZero() {
			fmt.Fprintf(out, "  Next update: %s\n", s.NextUpdate.UTC().Format(time.RFC3339))
		}
	}
}

func cmdOCSPRequest(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("ocsp request", flag.ContinueOnError)
	fs.SetOutput(errOut)
	issuerPath := fs.String("issuer", "", "Issuer certificate")
	certPath := fs.String("cert", "", "Certificate to ask about")
	nonceHex := fs.String("nonce-hex", "", "Nonce as hex (random when empty)")
	outPath := fs.String("out", "", "Write the DER request here instead of stdout")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *issuerPath == "" || *certPath == "" {
		fmt.Fprintln(errOut, "usage: digidoc ocsp request --issuer <cert> --cert <cert> [--nonce-hex <hex>] [--out <file>]")
		return 2
	}
	issuer, subject, code := loadPair(*issuerPath, *certPath, errOut)
	if code != 0 {
		return code
	}
	var nonce []byte
	var err error
	if *nonceHex != "" {
		nonce, err = hex.DecodeString(*nonceHex)
	} else {
		nonce, err = ocsp.NewNonce(nil)
	}
	if err != nil {
		fmt.Fprintf(errOut, "nonce: %v\n", err)
		return 1
	}
	der, _, err := ocsp.CreateRequest(issuer, subject, nonce)
	if err != nil {
		fmt.Fprintf(errOut, "build request: %v\n", err)
		return 1
	}
	if err := writeOutput(*outPath, der, out); err != nil {
		fmt.Fprintf(errOut, "write request: %v\n", err)
		return 1
	}
	return 0
}

func loadPair(issuerPath, certPath string, errOut io.Writer) (*x509cert.Certificate, *x509cert.Certificate, int) {
	issuer, err := config.LoadCertificate(issuerPath)
	if err != nil {
		fmt.Fprintf(errOut, "read --issuer: %v\n", err)
		return nil, nil, 1
	}
	subject, err := config.LoadCertificate(certPath)
	if err != nil {
		fmt.Fprintf(errOut, "read --cert: %v\n", err)
		return nil, nil, 1
	}
	return issuer, subject, 0
}

func cmdOCSPCheck(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("ocsp check", flag.ContinueOnError)
	fs.SetOutput(errOut)
	issuerPath := fs.String("issuer", "", "Issuer certificate")
	certPath := fs.String("cert", "", "Certificate to check")
	configPath := fs.String("config", "", "JSON config file")
	url := fs.String("url", "", "Responder URL (overrides config)")
	responderCert := fs.String("responder-cert", "", "Pinned responder certificate (overrides config)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *issuerPath == "" || *certPath == "" {
		fmt.Fprintln(errOut, "usage: digidoc ocsp check --issuer <cert> --cert <cert> [--config <file>] [--url <url> --responder-cert <cert>]")
		return 2
	}
	var cfg config.Config
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFile(*configPath); err != nil {
			fmt.Fprintf(errOut, "config: %v\n", err)
			return 1
		}
	}
	if *url != "" {
		cfg.OCSP.URL = *url
	}
	if *responderCert != "" {
		cfg.OCSP.ResponderCert = *responderCert
	}
	cfg = cfg.WithDefaults()
	if cfg.OCSP.URL == "" {
		fmt.Fprintln(errOut, "missing responder: set --url and --responder-cert or ocsp in --config")
		return 2
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	archive, err := cfg.OpenArchive()
	if err != nil {
		fmt.Fprintf(errOut, "archive: %v\n", err)
		return 1
	}
	responder, err := cfg.Responder(archive)
	if err != nil {
		fmt.Fprintf(errOut, "responder: %v\n", err)
		return 1
	}
	issuer, subject, code := loadPair(*issuerPath, *certPath, errOut)
	if code != 0 {
		return code
	}

	res, err := responder.Check(commandContext(errOut), issuer, subject)
	if err != nil {
		fmt.Fprintf(errOut, "check failed: %v\n", err)
		return 1
	}
	printResponse(out, res.Response)
	if res.Archived != nil {
		fmt.Fprintf(out, "Archived: %s\n", res.Archived.CID)
	}
	if res.Single.Status != ocsp.Good {
		return 1
	}
	return 0
}
