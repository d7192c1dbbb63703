package hood

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config defines runtime configuration for one hood client.
type Config struct {
	Host     string
	Port     int
	Timeouts Timeouts
	Profile  Profile
	Logger   zerolog.Logger
}

// DefaultPort is the vendor port observed on shipped units. Deployments
// vary (some firmware listens on 23), so it is configurable.
const DefaultPort = 8555

// Client drives one hood appliance. Every public call performs at most
// one full open/handshake/write/read/close exchange; exchanges are
// serialized because the device's embedded server cannot handle
// overlapping sessions.
type Client struct {
	cfg   Config
	store *Store

	// exchangeMu serializes whole dispatches (snapshot, exchange, merge)
	// so each full-state frame builds on the previous command's merge.
	exchangeMu sync.Mutex

	// healthMu guards the failure bookkeeping exposed to Health().
	healthMu     sync.Mutex
	lastSuccess  time.Time
	consecFails  int
	commands     uint64
	commandFails uint64
}

// Health is the signal the entity layer uses to decide availability. The
// client itself never declares the device unavailable.
type Health struct {
	LastSuccess         time.Time
	ConsecutiveFailures int
	CommandsTotal       uint64
	CommandFailures     uint64
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("hood host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("hood port %d out of range", cfg.Port)
	}
	if cfg.Profile.Name == "" {
		cfg.Profile = DefaultProfile()
	}
	if err := cfg.Profile.Validate(); err != nil {
		return nil, err
	}
	cfg.Timeouts = cfg.Timeouts.withDefaults()

	return &Client{
		cfg:   cfg,
		store: NewStore(DefaultState()),
	}, nil
}

// Profile returns the active firmware mapping table.
func (c *Client) Profile() Profile {
	return c.cfg.Profile
}

// Snapshot returns the last known full device state.
func (c *Client) Snapshot() State {
	return c.store.Snapshot()
}

// Health returns the failure bookkeeping for upstream availability
// policies.
func (c *Client) Health() Health {
	c.healthMu.Lock()
	defer c.healthMu.Unlock()
	return Health{
		LastSuccess:         c.lastSuccess,
		ConsecutiveFailures: c.consecFails,
		CommandsTotal:       c.commands,
		CommandFailures:     c.commandFails,
	}
}

// SendSymbolic resolves a symbolic command and dispatches it. Status
// queries run the read-only path; everything else resolves to a delta.
func (c *Client) SendSymbolic(ctx context.Context, cmd Command) (State, error) {
	if cmd == CmdStatusQuery {
		return c.QueryStatus(ctx)
	}
	delta, err := c.cfg.Profile.Delta(cmd)
	if err != nil {
		return nil, err
	}
	return c.SendDelta(ctx, delta)
}

// SendDelta applies the delta on top of the current snapshot, transmits
// the resulting full state (the protocol expects a full object on every
// command), and merges either the decoded reply or, when the device stays
// silent, the delta itself. The device does not reliably acknowledge
// writes, so the exchange counts as successful once the frame is written.
// Snapshot, encode, exchange, and merge all run under the exchange lock:
// a delta queued behind an in-flight command builds its full-state frame
// on that command's merge instead of reverting it on the device.
func (c *Client) SendDelta(ctx context.Context, delta State) (State, error) {
	if len(delta) == 0 {
		return nil, fmt.Errorf("empty delta")
	}

	c.exchangeMu.Lock()
	defer c.exchangeMu.Unlock()

	full := c.store.Snapshot()
	for k, v := range delta {
		full[k] = v
	}
	frame, err := EncodeFrame(full)
	if err != nil {
		err = fmt.Errorf("encode command: %w", err)
		c.recordFailure(err)
		return nil, err
	}

	reply, err := c.exchange(ctx, frame)
	if err != nil {
		c.recordFailure(err)
		return nil, err
	}

	if decoded, ok := c.decodeReply(reply); ok {
		c.store.Merge(decoded)
	} else {
		c.store.Merge(delta)
	}
	c.recordSuccess()
	return c.store.Snapshot(), nil
}

// QueryStatus sends the status query and merges whatever the device
// reports. A silent device is not a failure: the prior snapshot is
// returned unchanged.
func (c *Client) QueryStatus(ctx context.Context) (State, error) {
	c.exchangeMu.Lock()
	defer c.exchangeMu.Unlock()

	frame, err := EncodeFrame(c.cfg.Profile.StatusQueryFrame())
	if err != nil {
		err = fmt.Errorf("encode status query: %w", err)
		c.recordFailure(err)
		return nil, err
	}

	reply, err := c.exchange(ctx, frame)
	if err != nil {
		c.recordFailure(err)
		return nil, err
	}

	if decoded, ok := c.decodeReply(reply); ok {
		c.store.Merge(decoded)
	}
	c.recordSuccess()
	return c.store.Snapshot(), nil
}

// Ping performs one status exchange to verify the device answers at all.
// Used to validate a host:port before committing it to config.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.QueryStatus(ctx)
	return err
}

// exchange runs one open/handshake/write/read/close sequence and returns
// the raw reply bytes, which may be empty. The caller holds exchangeMu
// across snapshot, exchange, and merge, so the encoded frame cannot be
// stale by the time it hits the wire.
func (c *Client) exchange(ctx context.Context, frame []byte) ([]byte, error) {
	sess, err := dialSession(ctx, c.cfg.Host, c.cfg.Port, c.cfg.Timeouts)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	if greeting, ok := sess.readGreeting(); !ok {
		if len(greeting) > 0 {
			c.cfg.Logger.Warn().Bytes("greeting", greeting).Msg("unexpected greeting payload")
		} else {
			c.cfg.Logger.Debug().Msg("no greeting received")
		}
	}

	if err := sess.writeFrame(frame); err != nil {
		return nil, err
	}

	return sess.readReply(), nil
}

// decodeReply parses a reply and flags protocol ambiguity. Undecodable
// replies are logged and dropped, never fatal.
func (c *Client) decodeReply(reply []byte) (State, bool) {
	if len(reply) == 0 {
		return nil, false
	}
	decoded, ok := DecodeFrame(reply)
	if !ok {
		c.cfg.Logger.Warn().Bytes("reply", reply).Msg("reply present but not a JSON object")
		return nil, false
	}
	for _, warning := range c.cfg.Profile.RangeWarnings(decoded) {
		c.cfg.Logger.Warn().Str("field", warning).Msg("observed state outside profile range")
	}
	return decoded, true
}

func (c *Client) recordSuccess() {
	c.healthMu.Lock()
	defer c.healthMu.Unlock()
	c.commands++
	c.consecFails = 0
	c.lastSuccess = time.Now()
}

func (c *Client) recordFailure(err error) {
	c.cfg.Logger.Error().Err(err).Str("device", fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)).Msg("command not applied")
	c.healthMu.Lock()
	defer c.healthMu.Unlock()
	c.commands++
	c.commandFails++
	c.consecFails++
}
