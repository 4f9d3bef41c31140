package handler

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"clinic-management-api/internal/middleware"
	"clinic-management-api/internal/stats"
)

type Handler struct {
	agg *stats.Aggregator
	log zerolog.Logger
}

func New(agg *stats.Aggregator, log zerolog.Logger) *Handler {
	return &Handler{agg: agg, log: log}
}

func (h *Handler) GetDashboardStats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	st, err := h.agg.Compute(ctx, middleware.IdentityFrom(ctx))
	if err != nil {
		h.log.Error().Err(err).Msg("compute dashboard stats")
		return nil, status.Error(codes.Internal, "internal error")
	}
	return toStruct(map[string]any{"success": true, "stats": st})
}

func (h *Handler) GetHealthTrends(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	trends, err := h.agg.HealthTrends(ctx, middleware.IdentityFrom(ctx))
	if err != nil {
		h.log.Error().Err(err).Msg("compute health trends")
		return nil, status.Error(codes.Internal, "internal error")
	}
	return toStruct(map[string]any{"success": true, "trends": trends})
}

// toStruct goes through JSON so the gRPC body matches the REST one field
// for field.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	m := map[string]any{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	return s, nil
}
