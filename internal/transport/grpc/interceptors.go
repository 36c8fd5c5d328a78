package grpcx

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"github.com/bcrosbie/skillbench/internal/auth"
	"github.com/bcrosbie/skillbench/internal/domain"
	"github.com/bcrosbie/skillbench/internal/logger"
	"github.com/bcrosbie/skillbench/internal/rpccontract"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func RecoveryUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (response any, err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				logger.G(ctx).WithFields(logrus.Fields{
					"method": info.FullMethod,
					"panic":  recovered,
					"stack":  string(debug.Stack()),
				}).Error("panic recovered")
				err = status.Error(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}

// AuthUnaryInterceptor authorizes write methods once per call and leaves the
// decision in the context, where the service layer enforces it.
func AuthUnaryInterceptor(authorizer *auth.Authorizer) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if _, isWriteMethod := rpccontract.WriteMethods[info.FullMethod]; !isWriteMethod {
			return handler(ctx, req)
		}

		ctx, err := authorizer.Authorize(ctx, extractToken(ctx))
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

func LoggingUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		started := time.Now()
		ctx = logger.WithFields(ctx, logrus.Fields{"method": info.FullMethod})
		response, err := handler(ctx, req)

		entry := logger.G(ctx).WithFields(logrus.Fields{
			"duration": time.Since(started),
			"code":     status.Code(mapError(err)),
		})
		if err != nil {
			entry.WithError(err).Warn("grpc call failed")
			return response, err
		}
		entry.Info("grpc call")
		return response, nil
	}
}

func ErrorUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		response, err := handler(ctx, req)
		if err == nil {
			return response, nil
		}
		return nil, mapError(err)
	}
}

// mapError converts AppErrors into gRPC statuses. Errors that already carry a
// status pass through untouched; anything else is internal.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}

	appError, ok := domain.AsAppError(err)
	if !ok {
		return status.Error(codes.Internal, "internal server error")
	}
	switch appError.Code {
	case domain.CodeInvalidArgument, domain.CodeInvalidContainerContract:
		return status.Error(codes.InvalidArgument, appError.Message)
	case domain.CodeNotFound:
		return status.Error(codes.NotFound, appError.Message)
	case domain.CodeForbidden:
		return status.Error(codes.PermissionDenied, appError.Message)
	case domain.CodeIntegrityViolation, domain.CodeNoRecommendableSkill:
		return status.Error(codes.FailedPrecondition, appError.Message)
	case domain.CodeExecutionNotConfigured, domain.CodeSchemaUnavailable, domain.CodeUpstream:
		return status.Error(codes.Unavailable, appError.Message)
	case domain.CodeOrchestrationTimeout:
		return status.Error(codes.DeadlineExceeded, appError.Message)
	default:
		return status.Error(codes.Internal, appError.Message)
	}
}

func extractToken(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	return auth.TokenFromHeaders(first(md.Get(auth.HeaderToken)), first(md.Get(auth.HeaderAuthorization)))
}

func first(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return items[0]
}
