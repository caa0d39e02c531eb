package api

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/offsync/internal/bus"
	"github.com/matheus3301/offsync/internal/connectivity"
	"github.com/matheus3301/offsync/internal/offline"
	"github.com/matheus3301/offsync/internal/store"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type memRemote struct {
	mu      sync.Mutex
	records map[string][]map[string]any
}

func (m *memRemote) Upsert(_ context.Context, collection string, doc map[string]any) (offline.UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records == nil {
		m.records = make(map[string][]map[string]any)
	}
	m.records[collection] = append(m.records[collection], doc)
	return offline.UpsertResult{ID: "srv", UpdatedAt: time.Now()}, nil
}

func (m *memRemote) count(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records[collection])
}

func (m *memRemote) GetUpdatedAt(context.Context, string, string) (time.Time, bool, error) {
	return time.Time{}, false, nil
}

type harness struct {
	client  *QueueServiceClient
	session *offline.Session
	monitor *connectivity.Monitor
	remote  *memRemote
	bus     *bus.Bus
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	// Short path keeps the socket under the 104-char Unix limit on macOS.
	dir, err := os.MkdirTemp("/tmp", "offsync-api-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	db, err := store.Open(filepath.Join(dir, "queue.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	b := bus.New()
	monitor := connectivity.NewMonitor(b, nil, 0, nil)
	remote := &memRemote{}
	sess, err := offline.NewSession("ana", db, remote, monitor, offline.WithBus(b), offline.WithHistory(db))
	if err != nil {
		t.Fatal(err)
	}

	srv := grpc.NewServer()
	RegisterQueueServiceServer(srv, NewQueueService(t.Context(), sess, monitor, db, b, zap.NewNop()))
	socket := filepath.Join(dir, "d.sock")
	lis, err := net.Listen("unix", socket)
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("unix://"+socket, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return &harness{
		client:  NewQueueServiceClient(conn),
		session: sess,
		monitor: monitor,
		remote:  remote,
		bus:     b,
	}
}

func enqueueReq(t *testing.T, typ string, payload map[string]any) *structpb.Struct {
	t.Helper()
	req, err := structpb.NewStruct(map[string]any{"type": typ, "payload": payload})
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func TestEnqueueAndStatus(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()

	resp, err := h.client.Enqueue(ctx, enqueueReq(t, "journal", map[string]any{"content": "rough night", "tags": []any{"sleep"}}))
	if err != nil {
		t.Fatalf("Enqueue error = %v", err)
	}
	id := resp.GetFields()["id"].GetStringValue()
	if !offline.IsPlaceholderID(id) {
		t.Errorf("id = %q, want placeholder id", id)
	}

	st, err := h.client.Status(ctx, &emptypb.Empty{})
	if err != nil {
		t.Fatalf("Status error = %v", err)
	}
	f := st.GetFields()
	if f["user_id"].GetStringValue() != "ana" || f["pending"].GetNumberValue() != 1 || !f["has_pending"].GetBoolValue() {
		t.Errorf("status = %v", st)
	}
	if f["online"].GetBoolValue() || f["connectivity"].GetStringValue() != string(connectivity.Unknown) {
		t.Errorf("connectivity = %v / %v", f["online"], f["connectivity"])
	}
	entries := f["entries"].GetListValue().GetValues()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	e := entries[0].GetStructValue().GetFields()
	if e["id"].GetStringValue() != id || e["type"].GetStringValue() != "journal" || e["status"].GetStringValue() != "pending" {
		t.Errorf("entry = %v", e)
	}
}

func TestEnqueueValidation(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()

	tests := []struct {
		name string
		req  *structpb.Struct
	}{
		{"missing type", enqueueReq(t, "", map[string]any{})},
		{"unknown type", enqueueReq(t, "mood", map[string]any{})},
		{"foreign user", enqueueReq(t, "chat", map[string]any{"user_id": "bob"})},
		{"payload not object", func() *structpb.Struct {
			s, _ := structpb.NewStruct(map[string]any{"type": "chat", "payload": "hi"})
			return s
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.client.Enqueue(ctx, tt.req)
			if grpcstatus.Code(err) != codes.InvalidArgument {
				t.Errorf("Enqueue error = %v, want InvalidArgument", err)
			}
		})
	}
	if h.session.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d after rejected enqueues", h.session.PendingCount())
	}
}

func TestSyncOfflineThenOnline(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()

	if _, err := h.client.Enqueue(ctx, enqueueReq(t, "chat", map[string]any{"conversation_id": "c1", "role": "user", "content": "hi"})); err != nil {
		t.Fatal(err)
	}

	res, err := h.client.Sync(ctx, &emptypb.Empty{})
	if err != nil {
		t.Fatal(err)
	}
	if got := res.GetFields()["outcome"].GetStringValue(); got != string(offline.OutcomeOffline) {
		t.Errorf("outcome = %q, want offline", got)
	}

	if _, err := h.client.SetOnline(ctx, wrapperspb.Bool(true)); err != nil {
		t.Fatal(err)
	}
	res, err = h.client.Sync(ctx, &emptypb.Empty{})
	if err != nil {
		t.Fatal(err)
	}
	f := res.GetFields()
	if f["outcome"].GetStringValue() != string(offline.OutcomeCompleted) || f["synced"].GetNumberValue() != 1 || !f["success"].GetBoolValue() {
		t.Errorf("result = %v", res)
	}
	if n := h.remote.count("chat_messages"); n != 1 {
		t.Errorf("remote chat_messages = %d, want 1", n)
	}

	hist, err := h.client.History(ctx, wrapperspb.Int32(10))
	if err != nil {
		t.Fatal(err)
	}
	passes := hist.GetFields()["passes"].GetListValue().GetValues()
	if len(passes) != 1 || passes[0].GetStructValue().GetFields()["synced"].GetNumberValue() != 1 {
		t.Errorf("history = %v", hist)
	}
}

func TestRemoveAndClear(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()

	var ids []string
	for range 3 {
		resp, err := h.client.Enqueue(ctx, enqueueReq(t, "journal", map[string]any{"content": "x"}))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, resp.GetFields()["id"].GetStringValue())
	}

	if _, err := h.client.Remove(ctx, wrapperspb.String(ids[1])); err != nil {
		t.Fatal(err)
	}
	// Removing again is a no-op.
	if _, err := h.client.Remove(ctx, wrapperspb.String(ids[1])); err != nil {
		t.Fatal(err)
	}
	if _, err := h.client.Remove(ctx, wrapperspb.String("")); grpcstatus.Code(err) != codes.InvalidArgument {
		t.Errorf("Remove(\"\") error = %v, want InvalidArgument", err)
	}
	if n := h.session.PendingCount(); n != 2 {
		t.Errorf("PendingCount() = %d, want 2", n)
	}

	if _, err := h.client.Clear(ctx, &emptypb.Empty{}); err != nil {
		t.Fatal(err)
	}
	if h.session.HasPendingEntries() {
		t.Error("entries left after Clear")
	}
}

func TestProbeReleasesPin(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()

	if _, err := h.client.SetOnline(ctx, wrapperspb.Bool(false)); err != nil {
		t.Fatal(err)
	}
	if !h.monitor.Forced() {
		t.Fatal("SetOnline did not pin the state")
	}
	resp, err := h.client.Probe(ctx, &emptypb.Empty{})
	if err != nil {
		t.Fatal(err)
	}
	if h.monitor.Forced() {
		t.Error("Probe did not release the pin")
	}
	// No prober configured: the state stays where it was.
	if got := resp.GetFields()["connectivity"].GetStringValue(); got != string(connectivity.Offline) {
		t.Errorf("connectivity = %q, want OFFLINE", got)
	}
}

func TestWatchEvents(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	stream, err := h.client.WatchEvents(ctx, &emptypb.Empty{})
	if err != nil {
		t.Fatal(err)
	}
	// Publish until the server side has subscribed and forwarded one.
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				h.bus.Publish(bus.Event{Kind: "sync.ping"})
			}
		}
	}()
	first, err := stream.Recv()
	close(stop)
	if err != nil {
		t.Fatal(err)
	}
	if first.GetFields()["kind"].GetStringValue() != "sync.ping" {
		t.Fatalf("first event = %v", first)
	}

	if _, err := h.client.SetOnline(ctx, wrapperspb.Bool(true)); err != nil {
		t.Fatal(err)
	}
	for {
		msg, err := stream.Recv()
		if err != nil {
			t.Fatal(err)
		}
		f := msg.GetFields()
		if f["kind"].GetStringValue() == "sync.ping" {
			continue
		}
		if f["kind"].GetStringValue() != connectivity.EventChanged {
			t.Fatalf("kind = %q, want %s", f["kind"].GetStringValue(), connectivity.EventChanged)
		}
		if f["user_id"].GetStringValue() != "ana" || f["event_id"].GetStringValue() == "" {
			t.Errorf("envelope = %v", msg)
		}
		if to := f["payload"].GetStructValue().GetFields()["to"].GetStringValue(); to != string(connectivity.Online) {
			t.Errorf("payload.to = %q, want ONLINE", to)
		}
		return
	}
}

// stallRemote blocks every upsert until its context is done.
type stallRemote struct {
	started chan struct{}
	once    sync.Once
}

func (r *stallRemote) Upsert(ctx context.Context, _ string, _ map[string]any) (offline.UpsertResult, error) {
	r.once.Do(func() { close(r.started) })
	<-ctx.Done()
	return offline.UpsertResult{}, ctx.Err()
}

func (r *stallRemote) GetUpdatedAt(context.Context, string, string) (time.Time, bool, error) {
	return time.Time{}, false, nil
}

func TestSyncOutlivesCallerButNotShutdown(t *testing.T) {
	monitor := connectivity.NewMonitor(nil, nil, 0, nil)
	monitor.Set(true)
	remote := &stallRemote{started: make(chan struct{})}
	sess, err := offline.NewSession("ana", offline.NewMemoryStore(), remote, monitor)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sess.AddToQueue(&offline.JournalEntry{Content: "in flight"}); err != nil {
		t.Fatal(err)
	}

	life, shutdown := context.WithCancel(context.Background())
	defer shutdown()
	svc := NewQueueService(life, sess, monitor, nil, nil, nil)

	caller, hangUp := context.WithCancel(context.Background())
	type reply struct {
		res *structpb.Struct
		err error
	}
	done := make(chan reply, 1)
	go func() {
		res, err := svc.Sync(caller, &emptypb.Empty{})
		done <- reply{res, err}
	}()

	select {
	case <-remote.started:
	case <-time.After(2 * time.Second):
		t.Fatal("pass never reached the remote")
	}
	hangUp()
	select {
	case <-done:
		t.Fatal("pass ended when the caller hung up")
	case <-time.After(100 * time.Millisecond):
	}

	shutdown()
	var r reply
	select {
	case r = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pass kept running after shutdown")
	}
	if r.err != nil {
		t.Fatal(r.err)
	}
	if got := r.res.GetFields()["failed"].GetNumberValue(); got != 1 {
		t.Errorf("failed = %v, want 1", got)
	}
	entries := sess.Entries()
	if len(entries) != 1 || entries[0].RetryCount != 0 {
		t.Errorf("entries = %+v, want the interrupted entry kept uncharged", entries)
	}
}
