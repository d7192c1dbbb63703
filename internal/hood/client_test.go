package hood

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeDevice speaks the hood's side of the protocol: per connection it
// optionally writes a greeting, reads one CR-terminated frame, optionally
// answers, and closes. Connections are handled sequentially like the real
// single-client embedded server.
type fakeDevice struct {
	ln       net.Listener
	greeting string
	reply    func(frame []byte) []byte

	mu     sync.Mutex
	frames [][]byte
}

func newFakeDevice(t *testing.T, greeting string, reply func(frame []byte) []byte) *fakeDevice {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakeDevice{ln: ln, greeting: greeting, reply: reply}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			f.handle(conn)
		}
	}()
	return f
}

func (f *fakeDevice) handle(conn net.Conn) {
	defer conn.Close()
	if f.greeting != "" {
		_, _ = conn.Write([]byte(f.greeting))
	}
	frame, err := bufio.NewReader(conn).ReadBytes('\r')
	if err != nil {
		return
	}
	frame = bytes.TrimSuffix(frame, []byte{'\r'})

	f.mu.Lock()
	f.frames = append(f.frames, frame)
	f.mu.Unlock()

	if f.reply != nil {
		if resp := f.reply(frame); resp != nil {
			_, _ = conn.Write(resp)
		}
	}
}

func (f *fakeDevice) Frames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.frames))
	copy(out, f.frames)
	return out
}

func newTestClient(t *testing.T, f *fakeDevice) *Client {
	t.Helper()
	host, port := listenerHostPort(t, f.ln)
	client, err := NewClient(Config{
		Host:     host,
		Port:     port,
		Timeouts: testTimeouts(),
		Logger:   zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestSendDeltaNoReplyMergesOptimistically(t *testing.T) {
	f := newFakeDevice(t, "okidargb\r\n", nil)
	client := newTestClient(t, f)

	snapshot, err := client.SendDelta(context.Background(), State{FieldLight: 2, FieldRed: 10})
	if err != nil {
		t.Fatalf("SendDelta: %v", err)
	}
	if v, _ := snapshot.Int(FieldLight); v != 2 {
		t.Fatalf("L = %v, want 2", snapshot[FieldLight])
	}
	if v, _ := snapshot.Int(FieldRed); v != 10 {
		t.Fatalf("R = %v, want 10", snapshot[FieldRed])
	}
	// Unrelated fields keep their seeded values.
	if v, _ := snapshot.Int(FieldBrightness); v != 132 {
		t.Fatalf("BRG = %v, want 132", snapshot[FieldBrightness])
	}
}

func TestSendDeltaReplyOverridesLocalMerge(t *testing.T) {
	f := newFakeDevice(t, "okidargb\r\n", func([]byte) []byte {
		return []byte(`{"M":3,"L":0,"WS":"HoodNet"}` + "\r\n")
	})
	client := newTestClient(t, f)

	snapshot, err := client.SendDelta(context.Background(), State{FieldLight: 2})
	if err != nil {
		t.Fatalf("SendDelta: %v", err)
	}
	// The device is the source of truth: its reply wins over the delta.
	if v, _ := snapshot.Int(FieldLight); v != 0 {
		t.Fatalf("L = %v, want 0 from reply", snapshot[FieldLight])
	}
	if v, _ := snapshot.Int(FieldMotor); v != 3 {
		t.Fatalf("M = %v, want 3", snapshot[FieldMotor])
	}
	if ssid, _ := snapshot.String(FieldWifiSSID); ssid != "HoodNet" {
		t.Fatalf("WS = %v, want HoodNet", snapshot[FieldWifiSSID])
	}
}

func TestSendDeltaTransmitsFullState(t *testing.T) {
	f := newFakeDevice(t, "", nil)
	client := newTestClient(t, f)

	ctx := context.Background()
	// Establish the scenario's starting state.
	if _, err := client.SendDelta(ctx, State{FieldLight: 1, FieldColdWhite: 110}); err != nil {
		t.Fatalf("seed delta: %v", err)
	}
	if _, err := client.SendDelta(ctx, State{FieldLight: 2, FieldRed: 10, FieldGreen: 20, FieldBlue: 30}); err != nil {
		t.Fatalf("SendDelta: %v", err)
	}

	frames := f.Frames()
	if len(frames) != 2 {
		t.Fatalf("frames = %d, want 2", len(frames))
	}
	sent, ok := DecodeFrame(frames[1])
	if !ok {
		t.Fatalf("sent frame not decodable: %q", frames[1])
	}
	want := map[string]int{
		FieldLight: 2, FieldRed: 10, FieldGreen: 20, FieldBlue: 30,
		FieldColdWhite: 110, FieldBrightness: 132,
	}
	for field, value := range want {
		if v, _ := sent.Int(field); v != value {
			t.Fatalf("frame %s = %v, want %d", field, sent[field], value)
		}
	}
	// The frame carries the full state, not just the delta.
	for _, field := range []string{FieldMotor, FieldTemp, FieldTimerTM, FieldTimerTS, FieldAction} {
		if _, ok := sent[field]; !ok {
			t.Fatalf("frame missing retained field %s", field)
		}
	}
}

func TestStatusQuerySendsLiteralFrame(t *testing.T) {
	f := newFakeDevice(t, "okidargb\r\n", func([]byte) []byte {
		return []byte(`{"M":2,"L":2,"T":21}`)
	})
	client := newTestClient(t, f)

	snapshot, err := client.SendSymbolic(context.Background(), CmdStatusQuery)
	if err != nil {
		t.Fatalf("status query: %v", err)
	}

	frames := f.Frames()
	if len(frames) != 1 || string(frames[0]) != `{"A":4}` {
		t.Fatalf("frames = %q, want single {\"A\":4}", frames)
	}
	if v, _ := snapshot.Int(FieldTemp); v != 21 {
		t.Fatalf("T = %v, want 21", snapshot[FieldTemp])
	}
}

func TestStatusQueryNoReplyKeepsSnapshot(t *testing.T) {
	f := newFakeDevice(t, "", nil)
	client := newTestClient(t, f)

	before := client.Snapshot()
	after, err := client.SendSymbolic(context.Background(), CmdStatusQuery)
	if err != nil {
		t.Fatalf("status query with no reply must succeed: %v", err)
	}
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("snapshot changed without data: %v -> %v", before, after)
	}
	if health := client.Health(); health.ConsecutiveFailures != 0 {
		t.Fatalf("consecutive failures = %d, want 0", health.ConsecutiveFailures)
	}
}

func TestUndecodableReplyFallsBackToDelta(t *testing.T) {
	f := newFakeDevice(t, "", func([]byte) []byte {
		return []byte("okidargb")
	})
	client := newTestClient(t, f)

	snapshot, err := client.SendDelta(context.Background(), State{FieldMotor: 3})
	if err != nil {
		t.Fatalf("SendDelta: %v", err)
	}
	if v, _ := snapshot.Int(FieldMotor); v != 3 {
		t.Fatalf("M = %v, want optimistic 3", snapshot[FieldMotor])
	}
}

func TestSymbolicCommandIdempotent(t *testing.T) {
	f := newFakeDevice(t, "", nil)
	client := newTestClient(t, f)

	ctx := context.Background()
	first, err := client.SendSymbolic(ctx, CmdFanSpeed2)
	if err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	second, err := client.SendSymbolic(ctx, CmdFanSpeed2)
	if err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("repeated command changed state: %v -> %v", first, second)
	}
}

func TestConnectFailureIsReportedNotThrown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakeDevice{ln: ln}
	client := newTestClient(t, f)
	ln.Close()

	before := client.Snapshot()
	_, err = client.SendDelta(context.Background(), State{FieldLight: 2})
	if !errors.Is(err, ErrConnect) {
		t.Fatalf("err = %v, want ErrConnect", err)
	}
	if !reflect.DeepEqual(before, client.Snapshot()) {
		t.Fatalf("failed command mutated the store")
	}

	health := client.Health()
	if health.ConsecutiveFailures != 1 || health.CommandFailures != 1 {
		t.Fatalf("health = %+v, want one recorded failure", health)
	}
}

func TestEmptyDeltaRejected(t *testing.T) {
	f := newFakeDevice(t, "", nil)
	client := newTestClient(t, f)
	if _, err := client.SendDelta(context.Background(), nil); err == nil {
		t.Fatalf("expected error for empty delta")
	}
	if frames := f.Frames(); len(frames) != 0 {
		t.Fatalf("empty delta must not hit the wire, got %q", frames)
	}
}

func waitForFrames(t *testing.T, f *fakeDevice, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if len(f.Frames()) >= n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("device saw %d frames, want %d", len(f.Frames()), n)
}

func TestInFlightDeltaDoesNotRevertPriorDelta(t *testing.T) {
	// The first exchange is held open past its read deadline so the
	// second delta is dispatched while the first still owns the exchange.
	release := make(chan struct{})
	first := true
	f := newFakeDevice(t, "", func([]byte) []byte {
		if first {
			first = false
			<-release
		}
		return nil
	})
	client := newTestClient(t, f)

	done := make(chan error, 2)
	go func() {
		_, err := client.SendDelta(context.Background(), State{FieldRed: 1})
		done <- err
	}()
	waitForFrames(t, f, 1)
	go func() {
		_, err := client.SendDelta(context.Background(), State{FieldGreen: 2})
		done <- err
	}()
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Fatalf("SendDelta: %v", err)
		}
	}
	close(release)

	waitForFrames(t, f, 2)
	second, ok := DecodeFrame(f.Frames()[1])
	if !ok {
		t.Fatalf("second frame not decodable: %q", f.Frames()[1])
	}
	// The second full-state frame must build on the first delta's merge;
	// carrying the seed value would revert R on the device.
	if v, _ := second.Int(FieldRed); v != 1 {
		t.Fatalf("second frame R = %v, want 1 from the first delta", second[FieldRed])
	}
	if v, _ := second.Int(FieldGreen); v != 2 {
		t.Fatalf("second frame G = %v, want 2", second[FieldGreen])
	}
}

func TestEncodeFailureRecordedInHealth(t *testing.T) {
	f := newFakeDevice(t, "", nil)
	client := newTestClient(t, f)

	_, err := client.SendDelta(context.Background(), State{FieldRed: make(chan int)})
	if err == nil {
		t.Fatalf("expected encode error for unmarshalable value")
	}
	health := client.Health()
	if health.CommandFailures != 1 || health.ConsecutiveFailures != 1 {
		t.Fatalf("health = %+v, want recorded encode failure", health)
	}
	if frames := f.Frames(); len(frames) != 0 {
		t.Fatalf("encode failure must not hit the wire, got %q", frames)
	}
}

func TestConcurrentDispatchSerialized(t *testing.T) {
	f := newFakeDevice(t, "okidargb\r\n", nil)
	client := newTestClient(t, f)

	var wg sync.WaitGroup
	deltas := []State{{FieldRed: 1}, {FieldGreen: 2}}
	for _, delta := range deltas {
		wg.Add(1)
		go func(d State) {
			defer wg.Done()
			if _, err := client.SendDelta(context.Background(), d); err != nil {
				t.Errorf("SendDelta(%v): %v", d, err)
			}
		}(delta)
	}
	wg.Wait()

	frames := f.Frames()
	if len(frames) != 2 {
		t.Fatalf("frames = %d, want 2 serialized exchanges", len(frames))
	}
	for _, frame := range frames {
		if _, ok := DecodeFrame(frame); !ok {
			t.Fatalf("interleaved or corrupt frame: %q", frame)
		}
	}

	snapshot := client.Snapshot()
	if v, _ := snapshot.Int(FieldRed); v != 1 {
		t.Fatalf("R = %v, want 1", snapshot[FieldRed])
	}
	if v, _ := snapshot.Int(FieldGreen); v != 2 {
		t.Fatalf("G = %v, want 2", snapshot[FieldGreen])
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatalf("expected error for missing host")
	}
	if _, err := NewClient(Config{Host: "hood.local", Port: -1}); err == nil {
		t.Fatalf("expected error for bad port")
	}

	bad := DefaultProfile()
	bad.LightOff = bad.LightOn
	if _, err := NewClient(Config{Host: "hood.local", Profile: bad}); err == nil {
		t.Fatalf("expected error for invalid profile")
	}

	client, err := NewClient(Config{Host: "hood.local"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if client.Profile().Name != DefaultProfile().Name {
		t.Fatalf("expected default profile, got %s", client.Profile().Name)
	}
}
