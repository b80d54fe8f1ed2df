package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Full method names of the assistant service. Requests use well-known
// protobuf types so no generated stubs are needed.
const (
	ServiceName      = "agenda.assistant.v1.Assistant"
	completeMethod   = "/" + ServiceName + "/Complete"
	transcribeMethod = "/" + ServiceName + "/Transcribe"

	// FilenameMetadataKey carries the original audio file name.
	FilenameMetadataKey = "x-audio-filename"
)

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
	errEmptyCompletion          = errors.New("empty completion")
)

// GrpcClient provides a gRPC client to the assistant service.
type GrpcClient struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
	cfg    GrpcClientConfig
	logger *slog.Logger
}

// GrpcClientConfig holds configuration for the gRPC client.
type GrpcClientConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	RequestTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
	MaxTokens        int
	Temperature      float64
}

// DefaultGrpcClientConfig returns default configuration.
func DefaultGrpcClientConfig() GrpcClientConfig {
	return GrpcClientConfig{
		Address:          "localhost:50051",
		ConnectTimeout:   5 * time.Second,
		RequestTimeout:   30 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
		MaxTokens:        512,
		Temperature:      0.1,
	}
}

// NewGrpcClient creates a new gRPC client to the assistant service. Extra
// dial options are applied after the defaults.
func NewGrpcClient(cfg GrpcClientConfig, logger *slog.Logger, opts ...grpc.DialOption) (*GrpcClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultGrpcClientConfig()
	if cfg.Address == "" {
		cfg.Address = def.Address
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.KeepaliveTime <= 0 {
		cfg.KeepaliveTime = def.KeepaliveTime
	}
	if cfg.KeepaliveTimeout <= 0 {
		cfg.KeepaliveTimeout = def.KeepaliveTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	}, opts...)

	// Build client connection (no network I/O yet).
	conn, err := grpc.NewClient(cfg.Address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to assistant at %s: %w", cfg.Address, err)
	}

	// Force a connection attempt during startup so we fail fast on bad endpoints.
	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("assistant at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("Connected to assistant service", "address", cfg.Address)

	return &GrpcClient{
		conn:   conn,
		health: healthpb.NewHealthClient(conn),
		cfg:    cfg,
		logger: logger,
	}, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Close closes the gRPC connection.
func (c *GrpcClient) Close() {
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Warn("failed to close gRPC connection", "error", err)
		}
	}
}

// Health checks if the assistant service reports SERVING.
func (c *GrpcClient) Health(ctx context.Context) error {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return fmt.Errorf("%w: health check failed: %w", ErrUnavailable, err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: status %s", ErrUnavailable, resp.GetStatus())
	}
	return nil
}

// Respond sends the persona and user message to the completion RPC and
// returns the generated content.
func (c *GrpcClient) Respond(ctx context.Context, req FallbackRequest) (string, error) {
	in, err := structpb.NewStruct(map[string]any{
		"system":      req.Persona,
		"user_id":     req.UserID,
		"message":     req.Message,
		"max_tokens":  c.cfg.MaxTokens,
		"temperature": c.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, completeMethod, in, out); err != nil {
		c.logger.Warn("Complete failed", "error", err, "user_id", req.UserID)
		return "", fmt.Errorf("%w: complete: %w", ErrUnavailable, err)
	}

	content := strings.TrimSpace(out.GetFields()["content"].GetStringValue())
	if content == "" {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, errEmptyCompletion)
	}
	return content, nil
}

// Transcribe uploads audio and returns the recognized text.
func (c *GrpcClient) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()
	if filename != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, FilenameMetadataKey, filename)
	}

	out := &wrapperspb.StringValue{}
	if err := c.conn.Invoke(ctx, transcribeMethod, wrapperspb.Bytes(audio), out); err != nil {
		c.logger.Warn("Transcribe failed", "error", err, "bytes", len(audio))
		return "", fmt.Errorf("%w: transcribe: %w", ErrUnavailable, err)
	}
	return strings.TrimSpace(out.GetValue()), nil
}
