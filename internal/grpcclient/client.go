package grpcclient

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/recycle-points/internal/logging"
	"github.com/example/recycle-points/internal/vision"
)

// AnalyzeMethod is the unary RPC served by the vision service. Request and
// response are google.protobuf.Struct messages.
const AnalyzeMethod = "/vision.v1.VisionService/Analyze"

const dialTimeout = 5 * time.Second

// DialVision returns a ready-to-use gRPC vision client.
func DialVision(ctx context.Context, addr string, timeout time.Duration, logger *zap.Logger, opts ...grpc.DialOption) (*VisionClient, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	}, opts...)

	conn, err := grpc.DialContext(dialCtx, addr, dialOpts...)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_vision", "", err)
		logger.Error("failed to dial vision service", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return NewVisionClient(conn, timeout, logger), conn, nil
}

// NewVisionClient wraps an existing connection.
func NewVisionClient(conn grpc.ClientConnInterface, timeout time.Duration, logger *zap.Logger) *VisionClient {
	if timeout <= 0 {
		timeout = vision.DefaultTimeout
	}
	return &VisionClient{conn: conn, timeout: timeout, logger: logger.Named("vision_grpc")}
}

// VisionClient implements vision.Client over gRPC.
type VisionClient struct {
	conn    grpc.ClientConnInterface
	timeout time.Duration
	logger  *zap.Logger
}

// Analyze implements vision.Client.
func (g *VisionClient) Analyze(ctx context.Context, req vision.Request) (*vision.Response, error) {
	const op = "grpcclient.analyze"

	if len(req.Image) == 0 {
		return nil, vision.NewError(vision.KindInvalidImage, op, errors.New("empty image"))
	}
	prompt := req.Prompt
	if prompt == "" {
		prompt = vision.Prompt
	}

	in, err := structpb.NewStruct(map[string]any{
		"prompt":    prompt,
		"mime_type": req.MIMEType,
		"image":     base64.StdEncoding.EncodeToString(req.Image),
	})
	if err != nil {
		return nil, vision.NewError(vision.KindTransport, op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	out := &structpb.Struct{}
	if err := g.conn.Invoke(ctx, AnalyzeMethod, in, out); err != nil {
		verr := vision.NewError(kindForCode(err), op, err)
		logging.WithOperation(g.logger, op, "").Warn("vision call failed", zap.Error(verr), zap.Stringer("code", status.Code(err)))
		return nil, verr
	}
	latency := time.Since(start)

	return &vision.Response{
		Raw:     rawText(out),
		Model:   out.GetFields()["model"].GetStringValue(),
		Latency: latency,
	}, nil
}

func kindForCode(err error) vision.Kind {
	switch status.Code(err) {
	case codes.DeadlineExceeded:
		return vision.KindTimeout
	case codes.InvalidArgument:
		return vision.KindInvalidImage
	default:
		if errors.Is(err, context.DeadlineExceeded) {
			return vision.KindTimeout
		}
		return vision.KindTransport
	}
}

// rawText prefers a string "text" field and otherwise renders the whole
// struct as JSON for the normalizer.
func rawText(out *structpb.Struct) string {
	if v, ok := out.GetFields()["text"]; ok {
		if s, ok := v.GetKind().(*structpb.Value_StringValue); ok {
			return s.StringValue
		}
	}
	b, err := protojson.Marshal(out)
	if err != nil {
		return ""
	}
	return string(b)
}
