package auth

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/authfacade/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ToStatus converts an error returned by a provider or the directory into a
// gRPC status error. Internal details are not leaked for unknown errors.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	case errors.Is(err, common.ErrorInvalidPrincipal):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrorInvalidPayload):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrorUnknownProvider):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, common.ErrorConflict):
		return status.Error(codes.AlreadyExists, "already exists")
	case errors.Is(err, common.ErrorGroupNotEmpty):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, common.ErrorTransient):
		return status.Error(codes.Unavailable, "store unavailable")
	}
	return status.Error(codes.Internal, "internal error")
}
