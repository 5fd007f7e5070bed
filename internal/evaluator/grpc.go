package evaluator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/GoSim-25-26J-441/tune-core/pkg/models"
	"github.com/GoSim-25-26J-441/tune-core/pkg/params"
	"github.com/GoSim-25-26J-441/tune-core/pkg/utils"
)

// ServiceName is the gRPC service remote evaluators implement. Requests and
// responses are google.protobuf.Struct values:
//
//	request:  {"names": ["penalty", ...], "configuration": {"penalty": 0.01, ...}}
//	response: {"mean": 0.86, "std_err": 0.01}
const ServiceName = "tune.v1.Evaluator"

const evaluateMethod = "/" + ServiceName + "/Evaluate"

// GRPC calls a remote evaluator over a gRPC connection
type GRPC struct {
	conn    grpc.ClientConnInterface
	retries int
	backoff utils.BackoffStrategy
}

// NewGRPC wraps an existing connection
func NewGRPC(conn grpc.ClientConnInterface, retries int) *GRPC {
	return &GRPC{
		conn:    conn,
		retries: retries,
		backoff: utils.NewExponentialBackoff(500*time.Millisecond, 30*time.Second, 2, true),
	}
}

// DialGRPC opens a plaintext connection to target. The caller closes the
// returned connection.
func DialGRPC(target string, retries int) (*GRPC, *grpc.ClientConn, error) {
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create grpc client for %s: %w", target, err)
	}
	return NewGRPC(conn, retries), conn, nil
}

func (g *GRPC) Evaluate(ctx context.Context, cfg params.Configuration) (models.Estimate, error) {
	req, err := encodeRequest(cfg)
	if err != nil {
		return models.Estimate{}, err
	}

	var est models.Estimate
	err = utils.Retry(ctx, g.retries+1, g.backoff, func(ctx context.Context) error {
		out := &structpb.Struct{}
		if err := g.conn.Invoke(ctx, evaluateMethod, req, out); err != nil {
			switch status.Code(err) {
			case codes.Unavailable, codes.ResourceExhausted, codes.Aborted:
				return err
			}
			return utils.Permanent(err)
		}
		e := models.Estimate{
			Mean:   out.GetFields()["mean"].GetNumberValue(),
			StdErr: out.GetFields()["std_err"].GetNumberValue(),
		}
		if _, ok := out.GetFields()["mean"]; !ok {
			return utils.Permanent(fmt.Errorf("%w: response has no mean", ErrInvalidEstimate))
		}
		if err := Validate(e); err != nil {
			return utils.Permanent(err)
		}
		est = e
		return nil
	})
	if err != nil {
		return models.Estimate{}, fmt.Errorf("evaluate %s: %w", cfg.Key(), err)
	}
	return est, nil
}

func encodeRequest(cfg params.Configuration) (*structpb.Struct, error) {
	names := make([]any, cfg.Len())
	for i := range names {
		names[i] = cfg.Name(i)
	}
	req, err := structpb.NewStruct(map[string]any{
		"names":         names,
		"configuration": cfg.Map(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode configuration: %w", err)
	}
	return req, nil
}

func decodeRequest(req *structpb.Struct) (params.Configuration, error) {
	rawNames := req.GetFields()["names"].GetListValue().GetValues()
	values := req.GetFields()["configuration"].GetStructValue().GetFields()
	if len(rawNames) == 0 {
		return params.Configuration{}, errors.New("names are required")
	}
	names := make([]string, len(rawNames))
	vals := make([]params.Value, len(rawNames))
	for i, n := range rawNames {
		names[i] = n.GetStringValue()
		v, ok := values[names[i]]
		if !ok {
			return params.Configuration{}, fmt.Errorf("missing value for %s", names[i])
		}
		switch k := v.GetKind().(type) {
		case *structpb.Value_NumberValue:
			vals[i] = params.NumValue(k.NumberValue)
		case *structpb.Value_StringValue:
			vals[i] = params.LevelValue(k.StringValue)
		default:
			return params.Configuration{}, fmt.Errorf("unsupported value for %s", names[i])
		}
	}
	return params.NewConfiguration(names, vals)
}

// evaluatorServer is the handler type registered with grpc
type evaluatorServer interface {
	Evaluate(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type grpcServer struct {
	ev Evaluator
}

func (s *grpcServer) Evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	cfg, err := decodeRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	est, err := s.ev.Evaluate(ctx, cfg)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, status.FromContextError(err).Err()
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	return structpb.NewStruct(map[string]any{"mean": est.Mean, "std_err": est.StdErr})
}

func evaluateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(evaluatorServer).Evaluate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: evaluateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(evaluatorServer).Evaluate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var evaluatorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*evaluatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Evaluate", Handler: evaluateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tune/v1/evaluator.proto",
}

// RegisterEvaluatorService exposes ev on a gRPC server
func RegisterEvaluatorService(s grpc.ServiceRegistrar, ev Evaluator) {
	s.RegisterService(&evaluatorServiceDesc, &grpcServer{ev: ev})
}
