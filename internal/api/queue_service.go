// Package api exposes a user's offline queue to local clients over gRPC.
package api

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/matheus3301/offsync/internal/bus"
	"github.com/matheus3301/offsync/internal/connectivity"
	"github.com/matheus3301/offsync/internal/offline"
	"github.com/matheus3301/offsync/internal/store"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// PassLister reads stored sync pass summaries.
type PassLister interface {
	ListPasses(userID string, limit int) ([]store.Pass, error)
}

// QueueService implements QueueServiceServer on top of a Session.
type QueueService struct {
	life    context.Context
	session *offline.Session
	monitor *connectivity.Monitor
	history PassLister
	bus     *bus.Bus
	logger  *zap.Logger
}

// NewQueueService creates a new queue service. life bounds passes started
// over the API and open event streams; it is cancelled when the daemon shuts
// down. history may be nil.
func NewQueueService(life context.Context, s *offline.Session, m *connectivity.Monitor, history PassLister, b *bus.Bus, logger *zap.Logger) *QueueService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueService{
		life:    life,
		session: s,
		monitor: m,
		history: history,
		bus:     b,
		logger:  logger,
	}
}

var _ QueueServiceServer = (*QueueService)(nil)

func (s *QueueService) Enqueue(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	typ := fields["type"].GetStringValue()
	if typ == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "type is required")
	}
	payload := fields["payload"].GetStructValue()
	if payload == nil {
		return nil, grpcstatus.Error(codes.InvalidArgument, "payload must be an object")
	}
	raw, err := json.Marshal(payload.AsMap())
	if err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "encode payload: %v", err)
	}

	id, err := s.session.AddRaw(offline.EntryType(typ), raw)
	if err != nil {
		if errors.Is(err, offline.ErrUnknownType) || errors.Is(err, offline.ErrInvalidPayload) {
			return nil, grpcstatus.Error(codes.InvalidArgument, err.Error())
		}
		return nil, grpcstatus.Errorf(codes.Internal, "enqueue: %v", err)
	}
	return structpb.NewStruct(map[string]any{
		"id":      id,
		"pending": float64(s.session.PendingCount()),
	})
}

func (s *QueueService) Remove(_ context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if req.GetValue() == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "entry id is required")
	}
	if err := s.session.RemoveFromQueue(req.GetValue()); err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "remove: %v", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *QueueService) Sync(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	// A client hanging up must not interrupt the pass it started; daemon
	// shutdown does.
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	stop := context.AfterFunc(s.life, cancel)
	defer stop()

	res, err := s.session.Sync(ctx)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "sync: %v", err)
	}
	return structpb.NewStruct(resultMap(res))
}

func (s *QueueService) Status(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	entries := s.session.Entries()
	list := make([]any, 0, len(entries))
	for _, e := range entries {
		list = append(list, entryMap(e))
	}
	out := map[string]any{
		"user_id":      s.session.UserID(),
		"pending":      float64(s.session.PendingCount()),
		"has_pending":  s.session.HasPendingEntries(),
		"is_syncing":   s.session.IsSyncing(),
		"last_sync_at": "",
		"entries":      list,
	}
	if at, ok := s.session.LastSyncAt(); ok {
		out["last_sync_at"] = formatTime(at)
	}
	if s.monitor != nil {
		out["online"] = s.monitor.IsOnline()
		out["connectivity"] = string(s.monitor.Current())
		out["forced"] = s.monitor.Forced()
	}
	return structpb.NewStruct(out)
}

func (s *QueueService) Clear(_ context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.session.ClearQueue(); err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "clear: %v", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *QueueService) SetOnline(_ context.Context, req *wrapperspb.BoolValue) (*emptypb.Empty, error) {
	if s.monitor == nil {
		return nil, grpcstatus.Error(codes.Unavailable, "connectivity monitor not running")
	}
	s.monitor.Set(req.GetValue())
	s.logger.Info("connectivity pinned", zap.Bool("online", req.GetValue()))
	return &emptypb.Empty{}, nil
}

func (s *QueueService) Probe(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.monitor == nil {
		return nil, grpcstatus.Error(codes.Unavailable, "connectivity monitor not running")
	}
	s.monitor.Release()
	s.monitor.Probe(ctx)
	return structpb.NewStruct(map[string]any{
		"connectivity": string(s.monitor.Current()),
		"online":       s.monitor.IsOnline(),
	})
}

func (s *QueueService) History(_ context.Context, req *wrapperspb.Int32Value) (*structpb.Struct, error) {
	if s.history == nil {
		return nil, grpcstatus.Error(codes.Unavailable, "sync history not recorded")
	}
	passes, err := s.history.ListPasses(s.session.UserID(), int(req.GetValue()))
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "list passes: %v", err)
	}
	list := make([]any, 0, len(passes))
	for _, p := range passes {
		list = append(list, passMap(p))
	}
	return structpb.NewStruct(map[string]any{"passes": list})
}

func (s *QueueService) WatchEvents(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	if s.bus == nil {
		return grpcstatus.Error(codes.Unavailable, "event bus not running")
	}
	ch, unsub := s.bus.Subscribe(256, "queue.", "sync.", connectivity.EventChanged)
	defer unsub()

	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return nil
			}
			msg, err := eventStruct(s.session.UserID(), evt)
			if err != nil {
				s.logger.Warn("skipping unencodable event", zap.String("kind", evt.Kind), zap.Error(err))
				continue
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		case <-s.life.Done():
			return nil
		}
	}
}
