package handler

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dradenvandewind/registration-api/internal/core/activation"
	"github.com/dradenvandewind/registration-api/internal/core/registration"
)

// RegistrationServiceName は gRPC のサービス名です。
const RegistrationServiceName = "registration.v1.RegistrationService"

// RegistrationServiceServer は RegistrationService のサーバー側インターフェースです。
// メッセージは google.protobuf.Struct で表現します。
type RegistrationServiceServer interface {
	Register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Activate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ResendActivation(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Status(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type structMethod func(RegistrationServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// RegistrationServiceDesc は RegistrationService の grpc.ServiceDesc です。
var RegistrationServiceDesc = grpc.ServiceDesc{
	ServiceName: RegistrationServiceName,
	HandlerType: (*RegistrationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Register",
			Handler:    structHandler("Register", RegistrationServiceServer.Register),
		},
		{
			MethodName: "Activate",
			Handler:    structHandler("Activate", RegistrationServiceServer.Activate),
		},
		{
			MethodName: "ResendActivation",
			Handler:    structHandler("ResendActivation", RegistrationServiceServer.ResendActivation),
		},
		{
			MethodName: "Status",
			Handler:    structHandler("Status", RegistrationServiceServer.Status),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "registration/v1/registration.proto",
}

// RegisterRegistrationServiceServer はサーバーに RegistrationService を登録します。
func RegisterRegistrationServiceServer(s grpc.ServiceRegistrar, srv RegistrationServiceServer) {
	s.RegisterService(&RegistrationServiceDesc, srv)
}

func structHandler(method string, call structMethod) grpc.MethodHandler {
	fullMethod := "/" + RegistrationServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(RegistrationServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(RegistrationServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// RegistrationGrpcHandler は RegistrationService の gRPC 実装です。
type RegistrationGrpcHandler struct {
	registrations registration.UseCase
	activations   activation.UseCase
}

// NewRegistrationGrpcHandler は RegistrationGrpcHandler を生成します。
func NewRegistrationGrpcHandler(registrations registration.UseCase, activations activation.UseCase) *RegistrationGrpcHandler {
	return &RegistrationGrpcHandler{registrations: registrations, activations: activations}
}

// Register はユーザーを登録しコードを配送します。
func (h *RegistrationGrpcHandler) Register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	res, err := h.registrations.Register(ctx, registration.RegisterInput{
		Email:    stringField(req, "email"),
		Password: stringField(req, "password"),
	})
	if err != nil {
		return nil, toStatusError(err)
	}

	return toProtoResult(res)
}

// Activate はコードを引き換えてアカウントを有効化します。
func (h *RegistrationGrpcHandler) Activate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	code := stringField(req, "code")
	if !activation.ValidCodeFormat(code) {
		return nil, status.Errorf(codes.InvalidArgument, "code must be %d digits", activation.CodeLength)
	}

	activated, err := h.activations.ActivateAccount(ctx, activation.ActivateAccountInput{
		Email:    stringField(req, "email"),
		Password: stringField(req, "password"),
		Code:     code,
	})
	if err != nil {
		return nil, toStatusError(err)
	}

	return structpb.NewStruct(map[string]any{
		"user_id":   activated.ID,
		"email":     activated.Email,
		"is_active": activated.IsActive,
		"message":   "account activated",
	})
}

// ResendActivation は新しいコードを発行して配送します。
func (h *RegistrationGrpcHandler) ResendActivation(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	res, err := h.registrations.ResendActivation(ctx, registration.ResendInput{
		Email:    stringField(req, "email"),
		Password: stringField(req, "password"),
	})
	if err != nil {
		return nil, toStatusError(err)
	}

	return toProtoResult(res)
}

// Status はアカウントの有効化状態と最新コードの状態を返します。
func (h *RegistrationGrpcHandler) Status(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	st, err := h.activations.Status(ctx, activation.StatusInput{
		Email:    stringField(req, "email"),
		Password: stringField(req, "password"),
	})
	if err != nil {
		return nil, toStatusError(err)
	}

	fields := map[string]any{
		"user_id":    st.User.ID,
		"email":      st.User.Email,
		"is_active":  st.User.IsActive,
		"code_state": string(st.State),
	}
	if st.LatestCode != nil {
		fields["code_expires_at"] = st.LatestCode.ExpiresAt.UTC().Format(time.RFC3339Nano)
	}
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}

func toProtoResult(res *registration.Result) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(map[string]any{
		"id":              res.User.ID,
		"email":           res.User.Email,
		"is_active":       res.User.IsActive,
		"created_at":      res.User.CreatedAt.UTC().Format(time.RFC3339Nano),
		"code_expires_at": res.CodeExpiresAt.UTC().Format(time.RFC3339Nano),
		"delivered":       res.Delivered,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}

func stringField(s *structpb.Struct, key string) string {
	v, ok := s.GetFields()[key]
	if !ok {
		return ""
	}
	return v.GetStringValue()
}
