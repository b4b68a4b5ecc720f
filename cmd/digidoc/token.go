package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"strings"

	"xdao.co/digidoc/token"
)

func cmdToken(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: digidoc token <subcommand> ...")
		fmt.Fprintln(errOut, "subcommands: init, derive, list, cert, sign")
		return 2
	}
	fs := flag.NewFlagSet("token "+args[0], flag.ContinueOnError)
	fs.SetOutput(errOut)
	dir := fs.String("dir", "", "Token directory (default ~/.digidoc/tokens)")

	switch args[0] {
	case "init":
		name := fs.String("name", "", "Token name")
		seedHex := fs.String("seed-hex", "", "Ed25519 seed as 64 hex chars (random when empty)")
		force := fs.Bool("force", false, "Overwrite an existing token")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if *name == "" {
			fmt.Fprintln(errOut, "usage: digidoc token init --name <name> [--seed-hex <64hex>] [--force]")
			return 2
		}
		var seed []byte
		if *seedHex != "" {
			var err error
			if seed, err = token.ParseSeedHex(*seedHex); err != nil {
				fmt.Fprintln(errOut, err)
				return 2
			}
		}
		store, err := token.Open(*dir)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		tok, err := store.Init(*name, seed, *force)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		fmt.Fprintf(out, "%s %s\n", tok.Name, tok.Cert.SerialHex())
		return 0

	case "derive":
		from := fs.String("from", "", "Root token name")
		role := fs.String("role", "", "Role to derive")
		force := fs.Bool("force", false, "Overwrite an existing token")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if *from == "" || *role == "" {
			fmt.Fprintln(errOut, "usage: digidoc token derive --from <name> --role <role> [--force]")
			return 2
		}
		store, err := token.Open(*dir)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		tok, err := store.Derive(*from, *role, *force)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		fmt.Fprintf(out, "%s %s\n", tok.Name, tok.Cert.SerialHex())
		return 0

	case "list":
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		store, err := token.Open(*dir)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		names, err := store.List()
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		for _, n := range names {
			fmt.Fprintln(out, n)
		}
		return 0

	case "cert", "sign":
		name := fs.String("name", "", "Token name")
		challengeHex := fs.String("challenge-hex", "", "Challenge to sign, as hex (sign only)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if *name == "" || (args[0] == "sign" && *challengeHex == "") {
			fmt.Fprintln(errOut, "usage: digidoc token cert --name <name> | digidoc token sign --name <name> --challenge-hex <hex>")
			return 2
		}
		tok, err := loadToken(*dir, *name)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		if args[0] == "cert" {
			_, _ = out.Write(tok.Cert.PEM())
			return 0
		}
		challenge, err := hex.DecodeString(strings.TrimSpace(*challengeHex))
		if err != nil {
			fmt.Fprintf(errOut, "challenge: %v\n", err)
			return 2
		}
		sig, err := tok.SignChallenge(challenge)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		fmt.Fprintln(out, hex.EncodeToString(sig))
		return 0

	default:
		fmt.Fprintf(errOut, "unknown token subcommand: %s\n", args[0])
		return 2
	}
}

func loadToken(dir, name string) (*token.Token, error) {
	store, err := token.Open(dir)
	if err != nil {
		return nil, err
	}
	return store.Load(name)
}
