package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alverniaplanet/website/internal/collect"
	"github.com/alverniaplanet/website/internal/validation"
)

const (
	ServiceName       = "clicks.v1.ClickIngest"
	CollectFullMethod = "/" + ServiceName + "/Collect"
)

// ClickIngestServer accepts click batches over gRPC. Requests and responses
// are google.protobuf.Struct values with the same shape as the HTTP API.
type ClickIngestServer interface {
	Collect(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var ClickIngestServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ClickIngestServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Collect", Handler: collectHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "clicks/v1/ingest.proto",
}

func RegisterClickIngestServer(s grpc.ServiceRegistrar, srv ClickIngestServer) {
	s.RegisterService(&ClickIngestServiceDesc, srv)
}

func collectHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ClickIngestServer).Collect(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CollectFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ClickIngestServer).Collect(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

type IngestServer struct {
	collector *collect.Collector
}

func NewIngestServer(c *collect.Collector) *IngestServer {
	return &IngestServer{collector: c}
}

func (s *IngestServer) Collect(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	raw, err := req.MarshalJSON()
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "malformed request")
	}
	var batch collect.Batch
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid batch: %v", err)
	}

	res, err := s.collector.Collect(ctx, batch, clientInfo(ctx))
	switch {
	case err == nil:
	case errors.Is(err, validation.ErrInvalidSiteKey):
		return nil, status.Error(codes.Unauthenticated, "invalid site key")
	case errors.Is(err, collect.ErrRateLimited):
		return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
	case errors.Is(err, collect.ErrBatchTooLarge):
		return nil, status.Error(codes.InvalidArgument, err.Error())
	default:
		log.Error().Err(err).Msg("Click batch failed")
		return nil, status.Error(codes.Internal, "internal error")
	}

	errs := make([]any, len(res.Errors))
	for i, e := range res.Errors {
		errs[i] = e
	}
	return structpb.NewStruct(map[string]any{
		"success":          res.Rejected == 0,
		"session_id":       res.SessionID,
		"accepted_count":   res.Accepted,
		"rejected_count":   res.Rejected,
		"classified_count": res.Classified,
		"errors":           errs,
	})
}

func clientInfo(ctx context.Context) collect.ClientInfo {
	var info collect.ClientInfo
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ua := md.Get("user-agent"); len(ua) > 0 {
			info.UserAgent = ua[0]
		}
		if ip := md.Get("x-real-ip"); len(ip) > 0 {
			info.IP = ip[0]
		}
	}
	if info.IP == "" {
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			if host, _, err := net.SplitHostPort(p.Addr.String()); err == nil {
				info.IP = host
			}
		}
	}
	return info
}
