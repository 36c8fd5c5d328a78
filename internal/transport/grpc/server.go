package grpcx

import (
	"context"
	"encoding/json"

	"github.com/bcrosbie/skillbench/internal/domain"
	"github.com/bcrosbie/skillbench/internal/orchestrate"
	"github.com/bcrosbie/skillbench/internal/rpccontract"
	"github.com/bcrosbie/skillbench/internal/service"
	"github.com/bcrosbie/skillbench/internal/trial"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

type SkillRPCServer interface {
	GetHealth(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Recommend(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListTasks(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	ListSkills(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	GetSkill(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSkillScores(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRuns(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	GetTrial(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExecuteTrial(context.Context, *structpb.Struct) (*structpb.Struct, error)
	OrchestrateTrial(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type SkillHandler struct {
	skills *service.SkillService
}

func NewSkillHandler(skills *service.SkillService) *SkillHandler {
	return &SkillHandler{skills: skills}
}

func RegisterSkillServer(server *grpc.Server, handler SkillRPCServer) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: rpccontract.ServiceName,
		HandlerType: (*SkillRPCServer)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "GetHealth", Handler: unary(rpccontract.MethodGetHealth, SkillRPCServer.GetHealth)},
			{MethodName: "Recommend", Handler: unary(rpccontract.MethodRecommend, SkillRPCServer.Recommend)},
			{MethodName: "ListTasks", Handler: unary(rpccontract.MethodListTasks, SkillRPCServer.ListTasks)},
			{MethodName: "ListSkills", Handler: unary(rpccontract.MethodListSkills, SkillRPCServer.ListSkills)},
			{MethodName: "GetSkill", Handler: unary(rpccontract.MethodGetSkill, SkillRPCServer.GetSkill)},
			{MethodName: "GetSkillScores", Handler: unary(rpccontract.MethodGetSkillScores, SkillRPCServer.GetSkillScores)},
			{MethodName: "ListRuns", Handler: unary(rpccontract.MethodListRuns, SkillRPCServer.ListRuns)},
			{MethodName: "GetTrial", Handler: unary(rpccontract.MethodGetTrial, SkillRPCServer.GetTrial)},
			{MethodName: "ExecuteTrial", Handler: unary(rpccontract.MethodExecuteTrial, SkillRPCServer.ExecuteTrial)},
			{MethodName: "OrchestrateTrial", Handler: unary(rpccontract.MethodOrchestrate, SkillRPCServer.OrchestrateTrial)},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "proto/skillbench/v1/skillbench.proto",
	}, handler)
}

type slugRequest struct {
	Slug string `json:"slug"`
}

type idRequest struct {
	ID string `json:"id"`
}

func (h *SkillHandler) GetHealth(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	health, err := h.skills.Health(ctx)
	if err != nil {
		return nil, err
	}
	return toStruct(health)
}

func (h *SkillHandler) Recommend(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	decoded, err := decodeStruct[service.RecommendRequest](request)
	if err != nil {
		return nil, err
	}
	result, err := h.skills.Recommend(ctx, decoded)
	if err != nil {
		return nil, err
	}
	return toStruct(result)
}

func (h *SkillHandler) ListTasks(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	items, err := h.skills.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	return toList(items)
}

func (h *SkillHandler) ListSkills(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	items, err := h.skills.ListSkills(ctx)
	if err != nil {
		return nil, err
	}
	return toList(items)
}

func (h *SkillHandler) GetSkill(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	decoded, err := decodeStruct[slugRequest](request)
	if err != nil {
		return nil, err
	}
	skill, err := h.skills.GetSkill(ctx, decoded.Slug)
	if err != nil {
		return nil, err
	}
	return toStruct(skill)
}

func (h *SkillHandler) GetSkillScores(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	decoded, err := decodeStruct[slugRequest](request)
	if err != nil {
		return nil, err
	}
	scores, err := h.skills.SkillScores(ctx, decoded.Slug)
	if err != nil {
		return nil, err
	}
	return toStruct(scores)
}

func (h *SkillHandler) ListRuns(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	items, err := h.skills.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	return toList(items)
}

func (h *SkillHandler) GetTrial(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	decoded, err := decodeStruct[idRequest](request)
	if err != nil {
		return nil, err
	}
	detail, err := h.skills.GetTrial(ctx, decoded.ID)
	if err != nil {
		return nil, err
	}
	return toStruct(detail)
}

func (h *SkillHandler) ExecuteTrial(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	decoded, err := decodeStruct[trial.Input](request)
	if err != nil {
		return nil, err
	}
	result, err := h.skills.ExecuteTrial(ctx, decoded)
	if err != nil {
		return nil, err
	}
	return toStruct(result)
}

func (h *SkillHandler) OrchestrateTrial(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	decoded, err := decodeStruct[orchestrate.Request](request)
	if err != nil {
		return nil, err
	}
	result, err := h.skills.Orchestrate(ctx, decoded)
	if err != nil {
		return nil, err
	}
	return toStruct(result)
}

func toStruct(value any) (*structpb.Struct, error) {
	serialized, err := json.Marshal(value)
	if err != nil {
		return nil, domain.Internal("failed to encode response", err)
	}

	decoded := map[string]any{}
	if err := json.Unmarshal(serialized, &decoded); err != nil {
		return nil, domain.Internal("failed to shape response object", err)
	}
	result, err := structpb.NewStruct(decoded)
	if err != nil {
		return nil, domain.Internal("failed to convert response to protobuf struct", err)
	}
	return result, nil
}

func toList(value any) (*structpb.ListValue, error) {
	serialized, err := json.Marshal(value)
	if err != nil {
		return nil, domain.Internal("failed to encode response list", err)
	}

	decoded := []any{}
	if err := json.Unmarshal(serialized, &decoded); err != nil {
		return nil, domain.Internal("failed to shape response list", err)
	}
	result, err := structpb.NewList(decoded)
	if err != nil {
		return nil, domain.Internal("failed to convert response to protobuf list", err)
	}
	return result, nil
}

func decodeStruct[T any](input *structpb.Struct) (T, error) {
	var out T
	if input == nil {
		return out, domain.InvalidArgument("request payload is required")
	}
	serialized, err := json.Marshal(input.AsMap())
	if err != nil {
		return out, domain.InvalidArgument("request payload could not be encoded")
	}
	if err := json.Unmarshal(serialized, &out); err != nil {
		return out, domain.InvalidArgument("request payload shape is invalid: " + err.Error())
	}
	return out, nil
}

// unary builds the grpc.MethodHandler for one SkillRPCServer method. Req is
// either *emptypb.Empty or *structpb.Struct.
func unary[Req interface {
	*emptypb.Empty | *structpb.Struct
}, Resp any](fullMethod string, call func(SkillRPCServer, context.Context, Req) (Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, decoder func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		request := newRequest[Req]()
		if err := decoder(request); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SkillRPCServer), ctx, request)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(SkillRPCServer), ctx, req.(Req))
		}
		return interceptor(ctx, request, info, handler)
	}
}

func newRequest[Req interface {
	*emptypb.Empty | *structpb.Struct
}]() Req {
	var request Req
	switch any(request).(type) {
	case *emptypb.Empty:
		return any(new(emptypb.Empty)).(Req)
	default:
		return any(new(structpb.Struct)).(Req)
	}
}
