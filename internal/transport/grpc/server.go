package grpcx

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/aabboodi/edgehub/internal/domain"
	"github.com/aabboodi/edgehub/internal/orchestrator"
	"github.com/aabboodi/edgehub/internal/rpccontract"
)

type HubRPCServer interface {
	GetHealth(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetStats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ProcessTask(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdatePolicies(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddGlobalPolicy(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetDeviceStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetDeviceInsights(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListDevices(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
}

type HubHandler struct {
	orch *orchestrator.Orchestrator
}

func NewHubHandler(orch *orchestrator.Orchestrator) *HubHandler {
	return &HubHandler{orch: orch}
}

func RegisterHubServer(server *grpc.Server, handler HubRPCServer) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: rpccontract.ServiceName,
		HandlerType: (*HubRPCServer)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "GetHealth", Handler: getHealthHandler},
			{MethodName: "GetStats", Handler: getStatsHandler},
			{MethodName: "ProcessTask", Handler: processTaskHandler},
			{MethodName: "UpdatePolicies", Handler: updatePoliciesHandler},
			{MethodName: "AddGlobalPolicy", Handler: addGlobalPolicyHandler},
			{MethodName: "GetDeviceStatus", Handler: getDeviceStatusHandler},
			{MethodName: "GetDeviceInsights", Handler: getDeviceInsightsHandler},
			{MethodName: "ListDevices", Handler: listDevicesHandler},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "proto/edgehub/v1/hub.proto",
	}, handler)
}

func (h *HubHandler) GetHealth(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(h.orch.CheckHealth(ctx))
}

func (h *HubHandler) GetStats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	stats, err := h.orch.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return toStruct(stats)
}

func (h *HubHandler) ProcessTask(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	decoded, err := decodeStruct[orchestrator.ProcessRequest](request)
	if err != nil {
		return nil, err
	}
	response, err := h.orch.Process(ctx, decoded)
	if err != nil {
		return nil, err
	}
	return toStruct(response)
}

func (h *HubHandler) UpdatePolicies(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	decoded, err := decodeStruct[orchestrator.UpdatePoliciesRequest](request)
	if err != nil {
		return nil, err
	}
	if err := h.orch.UpdatePolicies(ctx, decoded.DeviceID, decoded.Policies, decoded.Signature); err != nil {
		return nil, err
	}
	return toStruct(map[string]any{"ok": true, "policies": len(decoded.Policies)})
}

func (h *HubHandler) AddGlobalPolicy(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	decoded, err := decodeStruct[orchestrator.AddGlobalPolicyRequest](request)
	if err != nil {
		return nil, err
	}
	if err := h.orch.AddGlobalPolicy(ctx, decoded.Policy); err != nil {
		return nil, err
	}
	return toStruct(map[string]any{"ok": true, "policy_id": decoded.Policy.ID})
}

func (h *HubHandler) GetDeviceStatus(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	decoded, err := decodeStruct[orchestrator.DeviceRequest](request)
	if err != nil {
		return nil, err
	}
	status, err := h.orch.Status(ctx, decoded.DeviceID)
	if err != nil {
		return nil, err
	}
	return toStruct(status)
}

func (h *HubHandler) GetDeviceInsights(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	decoded, err := decodeStruct[orchestrator.DeviceRequest](request)
	if err != nil {
		return nil, err
	}
	insights, err := h.orch.Insights(ctx, decoded.DeviceID)
	if err != nil {
		return nil, err
	}
	return toStruct(insights)
}

func (h *HubHandler) ListDevices(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	devices, err := h.orch.Devices(ctx)
	if err != nil {
		return nil, err
	}
	return toList(devices)
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
	serialized, err := json.Marshal(input.AsMap())
	if err != nil {
		return out, domain.InvalidArgument("request payload could not be encoded")
	}
	if err := json.Unmarshal(serialized, &out); err != nil {
		return out, domain.InvalidArgument("request payload shape is invalid")
	}
	return out, nil
}

func getHealthHandler(
	srv any,
	ctx context.Context,
	decoder func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	request := new(emptypb.Empty)
	if err := decoder(request); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HubRPCServer).GetHealth(ctx, request)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: rpccontract.MethodGetHealth}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(HubRPCServer).GetHealth(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, request, info, handler)
}

func getStatsHandler(
	srv any,
	ctx context.Context,
	decoder func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	request := new(emptypb.Empty)
	if err := decoder(request); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HubRPCServer).GetStats(ctx, request)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: rpccontract.MethodGetStats}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(HubRPCServer).GetStats(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, request, info, handler)
}

func processTaskHandler(
	srv any,
	ctx context.Context,
	decoder func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	request := new(structpb.Struct)
	if err := decoder(request); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HubRPCServer).ProcessTask(ctx, request)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: rpccontract.MethodProcessTask}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(HubRPCServer).ProcessTask(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, request, info, handler)
}

func updatePoliciesHandler(
	srv any,
	ctx context.Context,
	decoder func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	request := new(structpb.Struct)
	if err := decoder(request); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HubRPCServer).UpdatePolicies(ctx, request)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: rpccontract.MethodUpdatePolicies}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(HubRPCServer).UpdatePolicies(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, request, info, handler)
}

func addGlobalPolicyHandler(
	srv any,
	ctx context.Context,
	decoder func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	request := new(structpb.Struct)
	if err := decoder(request); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HubRPCServer).AddGlobalPolicy(ctx, request)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: rpccontract.MethodAddGlobalPolicy}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(HubRPCServer).AddGlobalPolicy(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, request, info, handler)
}

func getDeviceStatusHandler(
	srv any,
	ctx context.Context,
	decoder func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	request := new(structpb.Struct)
	if err := decoder(request); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HubRPCServer).GetDeviceStatus(ctx, request)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: rpccontract.MethodGetDeviceStatus}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(HubRPCServer).GetDeviceStatus(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, request, info, handler)
}

func getDeviceInsightsHandler(
	srv any,
	ctx context.Context,
	decoder func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	request := new(structpb.Struct)
	if err := decoder(request); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HubRPCServer).GetDeviceInsights(ctx, request)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: rpccontract.MethodGetDeviceInsights}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(HubRPCServer).GetDeviceInsights(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, request, info, handler)
}

func listDevicesHandler(
	srv any,
	ctx context.Context,
	decoder func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	request := new(emptypb.Empty)
	if err := decoder(request); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HubRPCServer).ListDevices(ctx, request)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: rpccontract.MethodListDevices}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(HubRPCServer).ListDevices(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, request, info, handler)
}
