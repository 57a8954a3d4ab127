package grpcsvc

import (
	"context"
	"errors"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/ims/internal/domain"
)

// Ключи метаданных, которые заполняет внешний аутентификатор.
const (
	MetadataActorID   = "x-actor-id"
	MetadataActorRole = "x-actor-role"
)

var errAuthRequired = status.Error(codes.Unauthenticated, "authentication required")

// principalFromContext извлекает принципала из входящих метаданных.
// ok=false, если принципал не передан.
func principalFromContext(ctx context.Context) (domain.Principal, bool, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return domain.Principal{}, false, nil
	}
	actorID := strings.TrimSpace(firstValue(md, MetadataActorID))
	rawRole := firstValue(md, MetadataActorRole)
	if actorID == "" && rawRole == "" {
		return domain.Principal{}, false, nil
	}
	if actorID == "" {
		return domain.Principal{}, false, errAuthRequired
	}
	role, err := domain.ParseRole(rawRole)
	if err != nil {
		return domain.Principal{}, false, status.Error(codes.Unauthenticated, "unknown actor role")
	}
	return domain.Principal{ActorID: actorID, Role: role}, true, nil
}

func firstValue(md metadata.MD, key string) string {
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}

// requirePrincipal требует аутентификации и, если роли заданы, одну из них.
func requirePrincipal(ctx context.Context, roles ...domain.Role) (domain.Principal, error) {
	principal, ok, err := principalFromContext(ctx)
	if err != nil {
		return domain.Principal{}, err
	}
	if !ok {
		return domain.Principal{}, errAuthRequired
	}
	if len(roles) == 0 {
		return principal, nil
	}
	for _, role := range roles {
		if principal.Role == role {
			return principal, nil
		}
	}
	return domain.Principal{}, status.Errorf(codes.PermissionDenied, "role %s is not allowed", principal.Role)
}

// toStatus переводит доменную ошибку в gRPC-статус по типу, без разбора текста.
func (s *InventoryService) toStatus(err error, operation string) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	code := codeFor(err)
	if code == codes.Internal {
		s.logger.WithError(err).WithField("operation", operation).Error("request failed")
		return status.Errorf(codes.Internal, "failed to %s", operation)
	}
	st := status.New(code, err.Error())
	if failure, ok := domain.AsStockFailure(err); ok {
		if detailed, derr := st.WithDetails(stockErrorInfo(err, failure)); derr == nil {
			st = detailed
		} else {
			s.logger.WithError(derr).WithField("operation", operation).Warn("failed to attach stock details")
		}
	}
	return st.Err()
}

// Причины ErrorInfo для отказов по остатку.
const (
	ReasonInsufficientStock = "INSUFFICIENT_STOCK"
	ReasonStockConflict     = "STOCK_CONFLICT"
	errorInfoDomain         = "ims.v1"
)

// stockErrorInfo описывает отказ по остатку; applied — ID через запятую.
func stockErrorInfo(err error, failure domain.StockFailure) *errdetails.ErrorInfo {
	reason := ReasonInsufficientStock
	if errors.Is(err, domain.ErrStockConflict) {
		reason = ReasonStockConflict
	}
	return &errdetails.ErrorInfo{
		Reason: reason,
		Domain: errorInfoDomain,
		Metadata: map[string]string{
			"product_id": failure.ProductID,
			"available":  strconv.FormatInt(failure.Available, 10),
			"requested":  strconv.FormatInt(failure.Requested, 10),
			"applied":    strings.Join(failure.Applied, ","),
		},
	}
}

// StockFailureFromError извлекает данные отказа по остатку из ошибки клиента.
func StockFailureFromError(err error) (domain.StockFailure, bool) {
	st, ok := status.FromError(err)
	if !ok {
		return domain.StockFailure{}, false
	}
	for _, detail := range st.Details() {
		info, ok := detail.(*errdetails.ErrorInfo)
		if !ok || info.GetDomain() != errorInfoDomain {
			continue
		}
		md := info.GetMetadata()
		failure := domain.StockFailure{ProductID: md["product_id"], Applied: []string{}}
		failure.Available, _ = strconv.ParseInt(md["available"], 10, 64)
		failure.Requested, _ = strconv.ParseInt(md["requested"], 10, 64)
		if applied := md["applied"]; applied != "" {
			failure.Applied = strings.Split(applied, ",")
		}
		return failure, true
	}
	return domain.StockFailure{}, false
}

func codeFor(err error) codes.Code {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return codes.InvalidArgument
	case errors.Is(err, domain.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, domain.ErrInsufficientStock):
		return codes.FailedPrecondition
	case errors.Is(err, domain.ErrStockConflict):
		return codes.Aborted
	case errors.Is(err, domain.ErrConflict):
		return codes.AlreadyExists
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}

func defaultLogger() *log.Entry {
	return log.WithField("component", "inventory-grpc")
}
