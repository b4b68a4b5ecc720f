package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	slogcontext "github.com/veqryn/slog-context"

	"xdao.co/digidoc/config"
)

// stdin is read by commands given "-" or no input file.
var stdin io.Reader = os.Stdin

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "b64":
		return cmdB64(args[1:], out, errOut)
	case "cert":
		return cmdCert(args[1:], out, errOut)
	case "ocsp":
		return cmdOCSP(args[1:], out, errOut)
	case "container":
		return cmdContainer(args[1:], out, errOut)
	case "token":
		return cmdToken(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "digidoc: signature container client")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  digidoc b64 encode|decode [<file>|-]")
	fmt.Fprintln(w, "  digidoc cert inspect [--body] <file>")
	fmt.Fprintln(w, "  digidoc ocsp inspect <response.der>")
	fmt.Fprintln(w, "  digidoc ocsp request --issuer <cert> --cert <cert> [--nonce-hex <hex>] [--out <file>]")
	fmt.Fprintln(w, "  digidoc ocsp check --issuer <cert> --cert <cert> [--config <file>] [--url <url> --responder-cert <cert>]")
	fmt.Fprintln(w, "  digidoc container create --state <file> [--cert <cert> --cert-id <id> | --token <name>] [--config <file>] [--target <addr>] <file> ...")
	fmt.Fprintln(w, "  digidoc container update --state <file> [--config <file>] [--target <addr>]")
	fmt.Fprintln(w, "  digidoc container finalize --state <file> (--solution-hex <hex> | --solution-file <file> | --token <name>) [--out <document>] [--config <file>] [--target <addr>]")
	fmt.Fprintln(w, "  digidoc container fetch --state <file> --out <document> [--close] [--config <file>] [--target <addr>]")
	fmt.Fprintln(w, "  digidoc token init --name <name> [--seed-hex <64hex>] [--force] [--dir <dir>]")
	fmt.Fprintln(w, "  digidoc token derive --from <name> --role <role> [--force] [--dir <dir>]")
	fmt.Fprintln(w, "  digidoc token list [--dir <dir>]")
	fmt.Fprintln(w, "  digidoc token cert --name <name> [--dir <dir>]")
	fmt.Fprintln(w, "  digidoc token sign --name <name> --challenge-hex <hex> [--dir <dir>]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - certificates may be DER, PEM, or (with --body) a PEM body without BEGIN/END lines")
	fmt.Fprintln(w, "  - container create prints the challenge to sign as hex; finalize takes the raw signature value")
	fmt.Fprintln(w, "  - the state file is a container snapshot; it carries the session between invocations")
	fmt.Fprintln(w, "  - tokens are software Ed25519 keys with self-signed certificates, for development")
	fmt.Fprintln(w, "  - set DIGIDOC_DEBUG=1 for debug logs on stderr")
}

// commonFlags are shared by commands that talk to the signing service.
type commonFlags struct {
	configPath string
	target     string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "JSON config file")
	fs.StringVar(&c.target, "target", "", "Signing service host:port (overrides config)")
}

func (c *commonFlags) load() (config.Config, error) {
	var cfg config.Config
	if c.configPath != "" {
		var err error
		if cfg, err = config.LoadFile(c.configPath); err != nil {
			return cfg, err
		}
	}
	if c.target != "" {
		cfg.Backend.Target = c.target
	}
	cfg = cfg.WithDefaults()
	return cfg, cfg.Validate()
}

// commandContext carries a stderr logger.
func commandContext(errOut io.Writer) context.Context {
	level := slog.LevelWarn
	if os.Getenv("DIGIDOC_DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level}))
	return slogcontext.NewCtx(context.Background(), logger)
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func writeOutput(path string, data []byte, out io.Writer) error {
	if path == "" || path == "-" {
		_, err := out.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
