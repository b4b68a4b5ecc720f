package grpcbackend

import (
	"context"
	"errors"
	"log/slog"

	slogcontext "github.com/veqryn/slog-context"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/digidoc/backend"
)

// Server exposes a backend.Backend as the signing service.
type Server struct {
	UnimplementedBackendServer

	Backend backend.Backend
	// Logger, when set, is attached to every request context.
	Logger *slog.Logger
}

var errNoBackend = errors.New("grpcbackend: server has no backend")

func (s *Server) context(ctx context.Context, method string) context.Context {
	if s.Logger != nil {
		ctx = slogcontext.NewCtx(ctx, s.Logger)
	}
	slogcontext.FromCtx(ctx).With(slog.String("realm", "grpcbackend")).Log(ctx, slog.LevelDebug, "rpc", slog.String("method", method))
	return ctx
}

func reply(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func (s *Server) OpenSession(ctx context.Context, in *wrapperspb.BytesValue) (*structpb.Struct, error) {
	if s.Backend == nil {
		return nil, mapErr(errNoBackend)
	}
	sess, err := s.Backend.OpenSession(s.context(ctx, "OpenSession"), in.GetValue())
	if err != nil {
		return nil, mapErr(err)
	}
	return reply(sessionFields(sess))
}

func (s *Server) CreateContainer(ctx context.Context, in *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if s.Backend == nil {
		return nil, mapErr(errNoBackend)
	}
	if err := s.Backend.CreateContainer(s.context(ctx, "CreateContainer"), backend.SessionID(in.GetValue())); err != nil {
		return nil, mapErr(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) AddFile(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.Backend == nil {
		return nil, mapErr(errNoBackend)
	}
	f := read(in)
	file := backend.File{
		Name:     f.str(fName),
		MimeType: f.str(fMimeType),
		Size:     f.int(fSize),
		Content:  f.bytes(fContent),
	}
	if f.err != nil {
		return nil, badRequest(f.err)
	}
	info, err := s.Backend.AddFile(s.context(ctx, "AddFile"), backend.SessionID(f.str(fSession)), file)
	if err != nil {
		return nil, mapErr(err)
	}
	return reply(fileInfoFields(info))
}

func (s *Server) PrepareSignature(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.Backend == nil {
		return nil, mapErr(errNoBackend)
	}
	f := read(in)
	cert := f.bytes(fCertificate)
	if f.err != nil {
		return nil, badRequest(f.err)
	}
	ch, err := s.Backend.PrepareSignature(s.context(ctx, "PrepareSignature"), backend.SessionID(f.str(fSession)), cert, f.str(fCertificateID))
	if err != nil {
		return nil, mapErr(err)
	}
	return reply(map[string]any{
		fSignatureID: ch.SignatureID,
		fChallenge:   encodeBytes(ch.Challenge),
	})
}

func (s *Server) FinalizeSignature(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.Backend == nil {
		return nil, mapErr(errNoBackend)
	}
	f := read(in)
	solution := f.bytes(fSolution)
	if f.err != nil {
		return nil, badRequest(f.err)
	}
	infos, err := s.Backend.FinalizeSignature(s.context(ctx, "FinalizeSignature"), backend.SessionID(f.str(fSession)), f.str(fSignatureID), solution)
	if err != nil {
		return nil, mapErr(err)
	}
	return reply(map[string]any{fSignatures: signatureList(infos)})
}

func (s *Server) RemoveSignature(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	if s.Backend == nil {
		return nil, mapErr(errNoBackend)
	}
	f := read(in)
	if err := s.Backend.RemoveSignature(s.context(ctx, "RemoveSignature"), backend.SessionID(f.str(fSession)), f.str(fSignatureID)); err != nil {
		return nil, mapErr(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) GetContents(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if s.Backend == nil {
		return nil, mapErr(errNoBackend)
	}
	doc, err := s.Backend.GetContents(s.context(ctx, "GetContents"), backend.SessionID(in.GetValue()))
	if err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.Bytes(doc), nil
}

func (s *Server) CloseSession(ctx context.Context, in *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if s.Backend == nil {
		return nil, mapErr(errNoBackend)
	}
	if err := s.Backend.CloseSession(s.context(ctx, "CloseSession"), backend.SessionID(in.GetValue())); err != nil {
		return nil, mapErr(err)
	}
	return &emptypb.Empty{}, nil
}
