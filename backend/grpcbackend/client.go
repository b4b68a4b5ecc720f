package grpcbackend

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/digidoc/backend"
)

// Client implements backend.Backend over the signing service's gRPC API.
type Client struct {
	cc     *grpc.ClientConn
	client BackendClient

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
}

var _ backend.Backend = (*Client)(nil)

type DialOptions struct {
	// Timeout applies to the initial dial when non-zero.
	Timeout time.Duration

	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int

	// Extra is appended to the dial options.
	Extra []grpc.DialOption
}

func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}
	dialOpts = append(dialOpts, opts.Extra...)

	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cc, err := grpc.DialContext(ctx, target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return NewClient(cc), nil
}

// NewClient wraps an established connection.
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc, client: NewBackendClient(cc)}
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.Timeout)
}

func request(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("grpcbackend: encode request: %w", err)
	}
	return s, nil
}

func decodeErr(f *fields) error {
	if f.err != nil {
		return fmt.Errorf("grpcbackend: decode reply: %w", f.err)
	}
	return nil
}

func (c *Client) OpenSession(ctx context.Context, document []byte) (backend.Session, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.OpenSession(ctx, wrapperspb.Bytes(document))
	if err != nil {
		return backend.Session{}, mapRPC(err)
	}
	f := read(reply)
	sess := sessionFrom(f)
	if err := decodeErr(f); err != nil {
		return backend.Session{}, err
	}
	return sess, nil
}

func (c *Client) CreateContainer(ctx context.Context, session backend.SessionID) error {
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	_, err := c.client.CreateContainer(ctx, wrapperspb.String(string(session)))
	return mapRPC(err)
}

func (c *Client) AddFile(ctx context.Context, session backend.SessionID, file backend.File) (backend.FileInfo, error) {
	in, err := request(map[string]any{
		fSession:  string(session),
		fName:     file.Name,
		fMimeType: file.MimeType,
		fSize:     file.Size,
		fContent:  encodeBytes(file.Content),
	})
	if err != nil {
		return backend.FileInfo{}, err
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.AddFile(ctx, in)
	if err != nil {
		return backend.FileInfo{}, mapRPC(err)
	}
	return fileInfoFrom(read(reply)), nil
}

func (c *Client) PrepareSignature(ctx context.Context, session backend.SessionID, certificate []byte, certificateID string) (backend.Challenge, error) {
	in, err := request(map[string]any{
		fSession:       string(session),
		fCertificate:   encodeBytes(certificate),
		fCertificateID: certificateID,
	})
	if err != nil {
		return backend.Challenge{}, err
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.PrepareSignature(ctx, in)
	if err != nil {
		return backend.Challenge{}, mapRPC(err)
	}
	f := read(reply)
	ch := backend.Challenge{SignatureID: f.str(fSignatureID), Challenge: f.bytes(fChallenge)}
	if err := decodeErr(f); err != nil {
		return backend.Challenge{}, err
	}
	return ch, nil
}

func (c *Client) FinalizeSignature(ctx context.Context, session backend.SessionID, signatureID string, solution []byte) ([]backend.SignatureInfo, error) {
	in, err := request(map[string]any{
		fSession:     string(session),
		fSignatureID: signatureID,
		fSolution:    encodeBytes(solution),
	})
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.FinalizeSignature(ctx, in)
	if err != nil {
		return nil, mapRPC(err)
	}
	f := read(reply)
	infos := signaturesFrom(f)
	if err := decodeErr(f); err != nil {
		return nil, err
	}
	return infos, nil
}

func (c *Client) RemoveSignature(ctx context.Context, session backend.SessionID, signatureID string) error {
	in, err := request(map[string]any{
		fSession:     string(session),
		fSignatureID: signatureID,
	})
	if err != nil {
		return err
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	_, err = c.client.RemoveSignature(ctx, in)
	return mapRPC(err)
}

func (c *Client) GetContents(ctx context.Context, session backend.SessionID) ([]byte, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.GetContents(ctx, wrapperspb.String(string(session)))
	if err != nil {
		return nil, mapRPC(err)
	}
	return reply.GetValue(), nil
}

func (c *Client) CloseSession(ctx context.Context, session backend.SessionID) error {
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	_, err := c.client.CloseSession(ctx, wrapperspb.String(string(session)))
	return mapRPC(err)
}
