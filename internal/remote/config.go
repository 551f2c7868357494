package remote

import (
	"time"

	"github.com/skobkin/menulink/internal/commands"
)

// Mode selects how the client authenticates after the remote joins.
type Mode int

const (
	ModeJoin Mode = iota
	ModePairing
)

func (m Mode) String() string {
	if m == ModePairing {
		return "pairing"
	}

	return "join"
}

const (
	DefaultAPIVersion          = 103
	DefaultHeartbeatInterval   = 1500 * time.Millisecond
	DefaultInitialBackoff      = 1500 * time.Millisecond
	DefaultMaxBackoff          = 60 * time.Second
	DefaultTickInterval        = 500 * time.Millisecond
	DefaultFailedAuthGrace     = 5 * time.Second
	DefaultWriteTimeout        = 10 * time.Second
	DefaultRxTimeoutMultiplier = 3
	DefaultStateTimeoutTicks   = 20
)

// Config holds the local identity and the session timing policy. The
// defaults match what deployed firmware expects.
type Config struct {
	Mode       Mode
	LocalName  string
	LocalUUID  string
	APIVersion int
	Platform   commands.ApiPlatform

	HeartbeatInterval   time.Duration
	InitialBackoff      time.Duration
	MaxBackoff          time.Duration
	TickInterval        time.Duration
	FailedAuthGrace     time.Duration
	WriteTimeout        time.Duration
	RxTimeoutMultiplier int
	StateTimeoutTicks   int
	MaxFrameSize        int
}

func DefaultConfig() Config {
	return Config{
		Mode:                ModeJoin,
		LocalName:           "menulink",
		APIVersion:          DefaultAPIVersion,
		Platform:            commands.PlatformGo,
		HeartbeatInterval:   DefaultHeartbeatInterval,
		InitialBackoff:      DefaultInitialBackoff,
		MaxBackoff:          DefaultMaxBackoff,
		TickInterval:        DefaultTickInterval,
		FailedAuthGrace:     DefaultFailedAuthGrace,
		WriteTimeout:        DefaultWriteTimeout,
		RxTimeoutMultiplier: DefaultRxTimeoutMultiplier,
		StateTimeoutTicks:   DefaultStateTimeoutTicks,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.LocalName == "" {
		c.LocalName = def.LocalName
	}
	if c.APIVersion == 0 {
		c.APIVersion = def.APIVersion
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = def.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = def.MaxBackoff
	}
	if c.TickInterval <= 0 {
		c.TickInterval = def.TickInterval
	}
	if c.FailedAuthGrace <= 0 {
		c.FailedAuthGrace = def.FailedAuthGrace
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.RxTimeoutMultiplier <= 0 {
		c.RxTimeoutMultiplier = def.RxTimeoutMultiplier
	}
	if c.StateTimeoutTicks <= 0 {
		c.StateTimeoutTicks = def.StateTimeoutTicks
	}

	return c
}
