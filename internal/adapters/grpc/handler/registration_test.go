package handler

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dradenvandewind/registration-api/internal/core/activation"
	"github.com/dradenvandewind/registration-api/internal/core/registration"
	"github.com/dradenvandewind/registration-api/internal/core/storage"
	"github.com/dradenvandewind/registration-api/internal/core/user"
)

type stubRegistrationUseCase struct {
	registerInput registration.RegisterInput
	registerOut   *registration.Result
	registerErr   error

	resendInput registration.ResendInput
	resendOut   *registration.Result
	resendErr   error
}

func (s *stubRegistrationUseCase) Register(_ context.Context, in registration.RegisterInput) (*registration.Result, error) {
	s.registerInput = in
	return s.registerOut, s.registerErr
}

func (s *stubRegistrationUseCase) ResendActivation(_ context.Context, in registration.ResendInput) (*registration.Result, error) {
	s.resendInput = in
	return s.resendOut, s.resendErr
}

type stubActivationUseCase struct {
	activateInput activation.ActivateAccountInput
	activateOut   *user.User
	activateErr   error
	calls         int

	statusInput activation.StatusInput
	statusOut   *activation.Status
	statusErr   error
}

func (s *stubActivationUseCase) IssueActivation(context.Context, string) (*activation.Code, error) {
	return nil, errors.New("not used")
}

func (s *stubActivationUseCase) ActivateAccount(_ context.Context, in activation.ActivateAccountInput) (*user.User, error) {
	s.calls++
	s.activateInput = in
	return s.activateOut, s.activateErr
}

func (s *stubActivationUseCase) Status(_ context.Context, in activation.StatusInput) (*activation.Status, error) {
	s.statusInput = in
	return s.statusOut, s.statusErr
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("failed to build struct: %v", err)
	}
	return s
}

func sampleResult() *registration.Result {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	return &registration.Result{
		User: &user.User{
			ID:        "user-1",
			Email:     "a@x.com",
			CreatedAt: now,
			UpdatedAt: now,
		},
		CodeExpiresAt: now.Add(time.Minute),
		Delivered:     true,
	}
}

func TestRegistrationGrpcHandler_Register(t *testing.T) {
	t.Parallel()

	regs := &stubRegistrationUseCase{registerOut: sampleResult()}
	h := NewRegistrationGrpcHandler(regs, &stubActivationUseCase{})

	resp, err := h.Register(context.Background(), mustStruct(t, map[string]any{"email": "a@x.com", "password": "pw1"}))
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	if regs.registerInput.Email != "a@x.com" || regs.registerInput.Password != "pw1" {
		t.Fatalf("unexpected input %+v", regs.registerInput)
	}

	fields := resp.GetFields()
	if fields["id"].GetStringValue() != "user-1" {
		t.Fatalf("unexpected id %v", fields["id"])
	}
	if fields["is_active"].GetBoolValue() {
		t.Fatalf("expected inactive user")
	}
	if fields["code_expires_at"].GetStringValue() != "2025-01-01T12:01:00Z" {
		t.Fatalf("unexpected code expiry %v", fields["code_expires_at"])
	}
}

func TestRegistrationGrpcHandler_Register_Duplicate(t *testing.T) {
	t.Parallel()

	h := NewRegistrationGrpcHandler(&stubRegistrationUseCase{registerErr: user.ErrEmailAlreadyExists}, &stubActivationUseCase{})

	_, err := h.Register(context.Background(), mustStruct(t, map[string]any{"email": "a@x.com", "password": "pw1"}))
	if status.Code(err) != codes.AlreadyExists {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}
}

func TestRegistrationGrpcHandler_Activate(t *testing.T) {
	t.Parallel()

	acts := &stubActivationUseCase{activateOut: &user.User{ID: "user-1", Email: "a@x.com", IsActive: true}}
	h := NewRegistrationGrpcHandler(&stubRegistrationUseCase{}, acts)

	resp, err := h.Activate(context.Background(), mustStruct(t, map[string]any{"email": "a@x.com", "password": "pw1", "code": "4821"}))
	if err != nil {
		t.Fatalf("Activate returned error: %v", err)
	}

	if acts.activateInput.Code != "4821" {
		t.Fatalf("unexpected code %s", acts.activateInput.Code)
	}
	if !resp.GetFields()["is_active"].GetBoolValue() {
		t.Fatalf("expected active user in response")
	}
}

func TestRegistrationGrpcHandler_Activate_RejectsMalformedCode(t *testing.T) {
	t.Parallel()

	acts := &stubActivationUseCase{}
	h := NewRegistrationGrpcHandler(&stubRegistrationUseCase{}, acts)

	for _, code := range []string{"", "123", "12345", "12a4", "4821 ", " 4821", "４８２１"} {
		_, err := h.Activate(context.Background(), mustStruct(t, map[string]any{"email": "a@x.com", "password": "pw1", "code": code}))
		if status.Code(err) != codes.InvalidArgument {
			t.Fatalf("expected InvalidArgument for %q, got %v", code, err)
		}
	}
	if acts.calls != 0 {
		t.Fatalf("malformed codes must not reach the service")
	}
}

func TestRegistrationGrpcHandler_ResendActivation(t *testing.T) {
	t.Parallel()

	regs := &stubRegistrationUseCase{resendErr: user.ErrAlreadyActive}
	h := NewRegistrationGrpcHandler(regs, &stubActivationUseCase{})

	_, err := h.ResendActivation(context.Background(), mustStruct(t, map[string]any{"email": "a@x.com", "password": "pw1"}))
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition, got %v", err)
	}
	if regs.resendInput.Email != "a@x.com" {
		t.Fatalf("unexpected input %+v", regs.resendInput)
	}
}

func TestRegistrationGrpcHandler_Status(t *testing.T) {
	t.Parallel()

	expires := time.Date(2025, 1, 1, 12, 1, 0, 0, time.UTC)
	acts := &stubActivationUseCase{statusOut: &activation.Status{
		User:       &user.User{ID: "user-1", Email: "a@x.com"},
		LatestCode: &activation.Code{ExpiresAt: expires},
		State:      activation.StatePending,
	}}
	h := NewRegistrationGrpcHandler(&stubRegistrationUseCase{}, acts)

	out, err := h.Status(context.Background(), mustStruct(t, map[string]any{"email": "a@x.com", "password": "pw1"}))
	if err != nil {
		t.Fatalf("Status error: %v", err)
	}
	fields := out.GetFields()
	if fields["code_state"].GetStringValue() != "pending" || fields["is_active"].GetBoolValue() {
		t.Fatalf("unexpected response %v", out)
	}
	if fields["code_expires_at"].GetStringValue() != expires.Format(time.RFC3339Nano) {
		t.Fatalf("unexpected expiry %v", fields["code_expires_at"])
	}
	if acts.statusInput.Email != "a@x.com" || acts.statusInput.Password != "pw1" {
		t.Fatalf("unexpected input %+v", acts.statusInput)
	}
}

func TestRegistrationGrpcHandler_Status_NoCode(t *testing.T) {
	t.Parallel()

	acts := &stubActivationUseCase{statusOut: &activation.Status{
		User:  &user.User{ID: "user-1", Email: "a@x.com", IsActive: true},
		State: activation.StateNone,
	}}
	h := NewRegistrationGrpcHandler(&stubRegistrationUseCase{}, acts)

	out, err := h.Status(context.Background(), mustStruct(t, map[string]any{"email": "a@x.com", "password": "pw1"}))
	if err != nil {
		t.Fatalf("Status error: %v", err)
	}
	if _, ok := out.GetFields()["code_expires_at"]; ok {
		t.Fatalf("expected no expiry without a code, got %v", out)
	}

	acts.statusErr = user.ErrUnauthorized
	if _, err := h.Status(context.Background(), mustStruct(t, map[string]any{"email": "a@x.com", "password": "bad"})); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}
}

func TestToStatusError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err    error
		code   codes.Code
		reason string
	}{
		{err: user.ErrInvalidEmail, code: codes.InvalidArgument, reason: reasonValidation},
		{err: user.ErrEmailAlreadyExists, code: codes.AlreadyExists, reason: reasonDuplicateEmail},
		{err: user.ErrUnauthorized, code: codes.Unauthenticated, reason: reasonUnauthorized},
		{err: activation.ErrInvalidCode, code: codes.InvalidArgument, reason: reasonInvalidCode},
		{err: activation.ErrCodeExpired, code: codes.FailedPrecondition, reason: reasonCodeExpired},
		{err: activation.ErrCodeAlreadyUsed, code: codes.FailedPrecondition, reason: reasonCodeAlreadyUsed},
		{err: user.ErrAlreadyActive, code: codes.FailedPrecondition, reason: reasonAlreadyActive},
		{err: activation.ErrIssuanceExhausted, code: codes.Aborted, reason: reasonIssuanceExhausted},
		{err: errors.Join(storage.ErrUnavailable, errors.New("dial")), code: codes.Unavailable, reason: reasonUnavailable},
		{err: errors.New("boom"), code: codes.Internal, reason: reasonInternal},
	}

	for _, tc := range cases {
		st, ok := status.FromError(toStatusError(tc.err))
		if !ok {
			t.Fatalf("expected status error for %v", tc.err)
		}
		if st.Code() != tc.code {
			t.Fatalf("expected %s for %v, got %s", tc.code, tc.err, st.Code())
		}
		details := st.Details()
		if len(details) != 1 {
			t.Fatalf("expected one detail for %v, got %d", tc.err, len(details))
		}
		info, ok := details[0].(*errdetails.ErrorInfo)
		if !ok || info.GetReason() != tc.reason {
			t.Fatalf("expected reason %s for %v, got %+v", tc.reason, tc.err, details[0])
		}
	}

	if toStatusError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestRegistrationServiceDesc_OverGRPC(t *testing.T) {
	t.Parallel()

	lis := bufconn.Listen(1 << 20)
	var (
		mu          sync.Mutex
		intercepted []string
	)
	srv := grpc.NewServer(grpc.UnaryInterceptor(func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		mu.Lock()
		intercepted = append(intercepted, info.FullMethod)
		mu.Unlock()
		return handler(ctx, req)
	}))
	acts := &stubActivationUseCase{activateErr: activation.ErrCodeExpired}
	RegisterRegistrationServiceServer(srv, NewRegistrationGrpcHandler(&stubRegistrationUseCase{registerOut: sampleResult()}, acts))

	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, "/"+RegistrationServiceName+"/Register", mustStruct(t, map[string]any{"email": "a@x.com", "password": "pw1"}), out); err != nil {
		t.Fatalf("Register over gRPC failed: %v", err)
	}
	if out.GetFields()["email"].GetStringValue() != "a@x.com" {
		t.Fatalf("unexpected response %v", out)
	}

	err = conn.Invoke(ctx, "/"+RegistrationServiceName+"/Activate", mustStruct(t, map[string]any{"email": "a@x.com", "password": "pw1", "code": "4821"}), new(structpb.Struct))
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(intercepted) != 2 || intercepted[0] != "/registration.v1.RegistrationService/Register" {
		t.Fatalf("unexpected intercepted methods %v", intercepted)
	}
}
