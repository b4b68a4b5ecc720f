package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"xdao.co/digidoc/config"
	"xdao.co/digidoc/digidoc"
	"xdao.co/digidoc/storage"
	"xdao.co/digidoc/token"
)

func cmdContainer(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: digidoc container <subcommand> ...")
		fmt.Fprintln(errOut, "subcommands: create, update, finalize, fetch")
		return 2
	}
	switch args[0] {
	case "create":
		return cmdContainerCreate(args[1:], out, errOut)
	case "update":
		return cmdContainerUpdate(args[1:], out, errOut)
	case "finalize":
		return cmdContainerFinalize(args[1:], out, errOut)
	case "fetch":
		return cmdContainerFetch(args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown container subcommand: %s\n", args[0])
		return 2
	}
}

// session is an open connection to the signing service plus the client
// options from config.
type session struct {
	client  *digidoc.Client
	archive *storage.Archive
	close   func() error
}

func openSession(common commonFlags) (*session, error) {
	cfg, err := common.load()
	if err != nil {
		return nil, err
	}
	archive, err := cfg.OpenArchive()
	if err != nil {
		return nil, err
	}
	conn, err := cfg.DialBackend()
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Backend.Target, err)
	}
	var opts []digidoc.Option
	if cfg.AutoMerge {
		opts = append(opts, digidoc.WithAutoMerge())
	}
	if archive != nil {
		opts = append(opts, digidoc.WithArchive(archive))
	}
	return &session{client: digidoc.NewClient(conn, opts...), archive: archive, close: conn.Close}, nil
}

func loadState(path string) (*digidoc.Container, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ct := new(digidoc.Container)
	if err := json.Unmarshal(b, ct); err != nil {
		return nil, fmt.Errorf("state %s: %w", path, err)
	}
	return ct, nil
}

func (s *session) saveState(path string, ct *digidoc.Container, errOut io.Writer) error {
	b, err := json.MarshalIndent(ct, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return err
	}
	if s.archive != nil {
		rec, err := digidoc.SaveSnapshot(s.archive, ct)
		if err != nil {
			return err
		}
		fmt.Fprintf(errOut, "snapshot archived as %s\n", rec.CID)
	}
	return nil
}

func cmdContainerCreate(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("container create", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.register(fs)
	statePath := fs.String("state", "", "Write the container state here")
	certPath := fs.String("cert", "", "Signer certificate (DER or PEM)")
	certID := fs.String("cert-id", "cert-0", "Token-side id of the signer certificate")
	tokenName := fs.String("token", "", "Sign with this software token instead of --cert")
	tokenDir := fs.String("token-dir", "", "Software token directory")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *statePath == "" || fs.NArg() == 0 || (*certPath != "" && *tokenName != "") {
		fmt.Fprintln(errOut, "usage: digidoc container create --state <file> [--cert <cert> --cert-id <id> | --token <name>] <file> ...")
		return 2
	}
	var signer digidoc.Certificate
	switch {
	case *certPath != "":
		cert, err := config.LoadCertificate(*certPath)
		if err != nil {
			fmt.Fprintf(errOut, "read --cert: %v\n", err)
			return 1
		}
		signer = digidoc.Certificate{ID: *certID, DER: cert.Raw()}
	case *tokenName != "":
		tok, err := loadToken(*tokenDir, *tokenName)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		signer = digidoc.Certificate{ID: tok.Name, DER: tok.Cert.Raw()}
	}

	sess, err := openSession(common)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer sess.close()
	ctx := commandContext(errOut)

	ct, err := sess.client.Create(ctx)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	for _, p := range fs.Args() {
		if _, err := ct.AddFileFromPath(p); err != nil {
			fmt.Fprintf(errOut, "add %s: %v\n", p, err)
			return 1
		}
	}
	if signer.DER != nil {
		if _, err := ct.AddSignature(signer); err != nil {
			fmt.Fprintf(errOut, "add signature: %v\n", err)
			return 1
		}
	}

	return sess.push(ctx, *statePath, ct, out, errOut)
}

// push runs Update and saves the state even when Update failed part way, so
// whatever the service accepted stays tracked and "container update" can
// resume from it.
func (s *session) push(ctx context.Context, statePath string, ct *digidoc.Container, out io.Writer, errOut io.Writer) int {
	report, updateErr := s.client.Update(ctx, ct)
	if err := s.saveState(statePath, ct, errOut); err != nil {
		fmt.Fprintf(errOut, "save state: %v\n", err)
		return 1
	}
	fmt.Fprintf(errOut, "session %s: %d file(s) pushed, %d challenge(s) issued\n", ct.Session(), report.FilesPushed, report.ChallengesIssued)
	if updateErr != nil {
		fmt.Fprintln(errOut, updateErr)
		fmt.Fprintf(errOut, "state saved to %s; retry with \"digidoc container update\" or discard with \"digidoc container fetch --close\"\n", statePath)
		return 1
	}
	for _, sig := range ct.Signatures() {
		if sig.State() == digidoc.ChallengeIssued {
			fmt.Fprintf(out, "%s %s\n", sig.ID(), strings.ToUpper(hex.EncodeToString(sig.Challenge())))
		}
	}
	return 0
}

func cmdContainerUpdate(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("container update", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.register(fs)
	statePath := fs.String("state", "", "Container state written by create")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *statePath == "" {
		fmt.Fprintln(errOut, "usage: digidoc container update --state <file>")
		return 2
	}
	ct, err := loadState(*statePath)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	sess, err := openSession(common)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer sess.close()
	ctx := commandContext(errOut)

	sess.client.Merge(ct)
	return sess.push(ctx, *statePath, ct, out, errOut)
}

func cmdContainerFinalize(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("container finalize", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.register(fs)
	statePath := fs.String("state", "", "Container state written by create")
	signatureID := fs.String("signature", "", "Signature id (defaults to the only pending one)")
	solutionHex := fs.String("solution-hex", "", "Signature value as hex")
	solutionFile := fs.String("solution-file", "", "File holding the raw signature value")
	tokenName := fs.String("token", "", "Solve the challenge with this software token")
	tokenDir := fs.String("token-dir", "", "Software token directory")
	outPath := fs.String("out", "", "Also fetch the signed document into this file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	sources := 0
	for _, v := range []string{*solutionHex, *solutionFile, *tokenName} {
		if v != "" {
			sources++
		}
	}
	if *statePath == "" || sources != 1 {
		fmt.Fprintln(errOut, "usage: digidoc container finalize --state <file> (--solution-hex <hex> | --solution-file <file> | --token <name>) [--signature <id>] [--out <document>]")
		return 2
	}

	ct, err := loadState(*statePath)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	target, err := pendingSignature(ct, *signatureID)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	var solution []byte
	switch {
	case *solutionHex != "":
		solution, err = hex.DecodeString(strings.TrimSpace(*solutionHex))
	case *solutionFile != "":
		solution, err = readInput(*solutionFile)
	default:
		var tok *token.Token
		if tok, err = loadToken(*tokenDir, *tokenName); err == nil {
			solution, err = tok.SignChallenge(target.Challenge())
		}
	}
	if err != nil {
		fmt.Fprintf(errOut, "solution: %v\n", err)
		return 1
	}
	if err := target.SetSolution(solution); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	sess, err := openSession(common)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer sess.close()
	ctx := commandContext(errOut)

	sess.client.Merge(ct)
	report, updateErr := sess.client.Update(ctx, ct)
	for _, id := range report.Sealed {
		fmt.Fprintf(out, "sealed %s\n", id)
	}
	for _, r := range report.Rejected {
		fmt.Fprintf(out, "rejected %s %s: %s\n", r.SignatureID, r.Status, r.Reason)
	}
	if err := sess.saveState(*statePath, ct, errOut); err != nil {
		fmt.Fprintf(errOut, "save state: %v\n", err)
		return 1
	}
	if updateErr != nil {
		fmt.Fprintln(errOut, updateErr)
		return 1
	}
	if *outPath != "" {
		if code := fetch(ctx, sess, ct, *outPath, out, errOut); code != 0 {
			return code
		}
	}
	if len(report.Rejected) > 0 {
		return 1
	}
	return 0
}

func pendingSignature(ct *digidoc.Container, id string) (*digidoc.SignatureRecord, error) {
	if id != "" {
		s, ok := ct.Signature(id)
		if !ok {
			return nil, fmt.Errorf("no signature %q in state", id)
		}
		return s, nil
	}
	var pending []*digidoc.SignatureRecord
	for _, s := range ct.Signatures() {
		if s.State() == digidoc.ChallengeIssued {
			pending = append(pending, s)
		}
	}
	switch len(pending) {
	case 0:
		return nil, errors.New("no signature is waiting for a solution")
	case 1:
		return pending[0], nil
	default:
		return nil, fmt.Errorf("%d signatures are pending; pick one with --signature", len(pending))
	}
}

func fetch(ctx context.Context, sess *session, ct *digidoc.Container, outPath string, out io.Writer, errOut io.Writer) int {
	doc, err := sess.client.Contents(ctx, ct)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if err := writeOutput(outPath, doc, out); err != nil {
		fmt.Fprintf(errOut, "write document: %v\n", err)
		return 1
	}
	return 0
}

func cmdContainerFetch(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("container fetch", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.register(fs)
	statePath := fs.String("state", "", "Container state written by create")
	outPath := fs.String("out", "", "Write the signed document here")
	closeSession := fs.Bool("close", false, "Close the session afterwards")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *statePath == "" || *outPath == "" {
		fmt.Fprintln(errOut, "usage: digidoc container fetch --state <file> --out <document> [--close]")
		return 2
	}
	ct, err := loadState(*statePath)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	sess, err := openSession(common)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer sess.close()
	ctx := commandContext(errOut)

	if code := fetch(ctx, sess, ct, *outPath, out, errOut); code != 0 {
		return code
	}
	if !*closeSession {
		return 0
	}
	if err := sess.client.Close(ctx, ct); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if err := sess.saveState(*statePath, ct, errOut); err != nil {
		fmt.Fprintf(errOut, "save state: %v\n", err)
		return 1
	}
	return 0
}
