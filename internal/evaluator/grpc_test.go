package evaluator

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/GoSim-25-26J-441/tune-core/pkg/models"
	"github.com/GoSim-25-26J-441/tune-core/pkg/params"
)

func startBufServer(t *testing.T, ev Evaluator) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterEvaluatorService(srv, ev)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestGRPCRoundTrip(t *testing.T) {
	var seen params.Configuration
	conn := startBufServer(t, Func(func(_ context.Context, cfg params.Configuration) (models.Estimate, error) {
		seen = cfg
		return models.Estimate{Mean: 0.8631, StdErr: 0.002}, nil
	}))

	cfg := testConfig(t)
	est, err := NewGRPC(conn, 0).Evaluate(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if est.Mean != 0.8631 || est.StdErr != 0.002 {
		t.Errorf("unexpected estimate %+v", est)
	}
	if !seen.Equal(cfg) {
		t.Errorf("server saw %v, expected %v", seen, cfg)
	}
}

func TestGRPCEvaluationFailure(t *testing.T) {
	conn := startBufServer(t, Func(func(context.Context, params.Configuration) (models.Estimate, error) {
		return models.Estimate{}, errors.New("model fit failed")
	}))

	_, err := NewGRPC(conn, 2).Evaluate(context.Background(), testConfig(t))
	if err == nil {
		t.Fatal("expected an error")
	}
	if status.Code(errors.Unwrap(err)) != codes.Internal && !strings.Contains(err.Error(), "model fit failed") {
		t.Errorf("unexpected error %v", err)
	}
}

func TestGRPCServerRejectsBadRequest(t *testing.T) {
	s := &grpcServer{ev: Func(func(context.Context, params.Configuration) (models.Estimate, error) {
		return models.Estimate{}, nil
	})}
	if _, err := s.Evaluate(context.Background(), nil); status.Code(err) != codes.InvalidArgument {
		t.Errorf("expected InvalidArgument for nil request, got %v", err)
	}
	req, err := encodeRequest(testConfig(t))
	if err != nil {
		t.Fatalf("encodeRequest: %v", err)
	}
	delete(req.Fields, "names")
	if _, err := s.Evaluate(context.Background(), req); status.Code(err) != codes.InvalidArgument {
		t.Errorf("expected InvalidArgument without names, got %v", err)
	}
}

func TestDecodeRequestRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	req, err := encodeRequest(cfg)
	if err != nil {
		t.Fatalf("encodeRequest: %v", err)
	}
	back, err := decodeRequest(req)
	if err != nil {
		t.Fatalf("decodeRequest: %v", err)
	}
	if !back.Equal(cfg) {
		t.Errorf("expected %v, got %v", cfg, back)
	}
}
