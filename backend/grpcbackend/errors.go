package grpcbackend

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/protoadapt"
	"google.golang.org/protobuf/types/known/structpb"

	"xdao.co/digidoc/backend"
)

// grpcCode picks the transport code for a service status code. The service
// code itself travels in the status details.
func grpcCode(code int) codes.Code {
	switch backend.KindOf(code) {
	case backend.ErrAccessDenied:
		return codes.PermissionDenied
	case backend.ErrSessionLocked:
		return codes.Aborted
	case backend.ErrCertificateInvalid:
		return codes.FailedPrecondition
	case backend.ErrRequestTooLarge:
		return codes.ResourceExhausted
	case backend.ErrRateLimited:
		return codes.Unavailable
	}
	if code >= 200 {
		return codes.Internal
	}
	return codes.InvalidArgument
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var pe *backend.ProtocolError
	if !errors.As(err, &pe) {
		switch {
		case errors.Is(err, context.Canceled):
			return status.Error(codes.Canceled, err.Error())
		case errors.Is(err, context.DeadlineExceeded):
			return status.Error(codes.DeadlineExceeded, err.Error())
		default:
			return status.Error(codes.Internal, err.Error())
		}
	}
	st := status.New(grpcCode(pe.Code), pe.Message)
	detail, derr := structpb.NewStruct(map[string]any{fCode: pe.Code, fMessage: pe.Message})
	if derr != nil {
		return st.Err()
	}
	if withDetail, derr := st.WithDetails(protoadapt.MessageV1Of(detail)); derr == nil {
		st = withDetail
	}
	return st.Err()
}

func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	for _, d := range st.Details() {
		if s, ok := d.(*structpb.Struct); ok && read(s).has(fCode) {
			f := read(s)
			return backend.NewProtocolError(int(f.int(fCode)), f.str(fMessage))
		}
	}
	switch st.Code() {
	case codes.ResourceExhausted:
		return backend.NewProtocolError(backend.CodeTooLarge, st.Message())
	case codes.PermissionDenied, codes.Unauthenticated:
		return backend.NewProtocolError(backend.CodeAccessDenied, st.Message())
	case codes.InvalidArgument:
		return backend.NewProtocolError(backend.CodeBadInput, st.Message())
	default:
		return err
	}
}

// badRequest reports a request the server could not decode.
func badRequest(err error) error {
	return mapErr(backend.NewProtocolError(backend.CodeBadInput, err.Error()))
}
