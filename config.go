/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Seednode/petshow/election"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	maxFrameRate = 240
	maxRoomLen   = 64
)

type Config struct {
	verbose bool
	version bool

	// relay
	bind        string
	mdns        bool
	port        int
	prefix      string
	profile     bool
	roomTimeout time.Duration
	tlsCert     string
	tlsKey      string

	// shared by relay and perform
	redisAddr     string
	redisPassword string

	// perform
	clips     string
	discover  bool
	fps       int
	heartbeat time.Duration
	id        string
	relayURL  string
	room      string
	window    time.Duration
}

func (c *Config) validateRelay() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	return nil
}

func (c *Config) validatePerform() error {
	if c.heartbeat <= 0 {
		return fmt.Errorf("invalid heartbeat (must be positive): %s", c.heartbeat)
	}
	if c.window <= c.heartbeat {
		return fmt.Errorf("invalid window (must be longer than the heartbeat of %s): %s", c.heartbeat, c.window)
	}
	if c.fps < 1 || c.fps > maxFrameRate {
		return fmt.Errorf("invalid fps (must be between 1-%d inclusive): %d", maxFrameRate, c.fps)
	}
	if c.room == "" || len(c.room) > maxRoomLen {
		return fmt.Errorf("invalid room (must be 1-%d characters): %q", maxRoomLen, c.room)
	}

	sources := 0
	for _, set := range []bool{c.relayURL != "", c.discover, c.redisAddr != ""} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		return errors.New("exactly one of --relay, --discover or --redis-addr must be provided")
	}

	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// bindEnv lets every flag in fs fall back to its PETSHOW_ environment variable.
func bindEnv(v *viper.Viper, fs *pflag.FlagSet) {
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}

func newRelayCmd(cfg *Config, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the websocket relay that participants join.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validateRelay(); err != nil {
				return err
			}
			return ServeRelay(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: PETSHOW_BIND)")
	fs.BoolVar(&cfg.mdns, "mdns", false, "advertise the relay on the local network (env: PETSHOW_MDNS)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: PETSHOW_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: PETSHOW_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: PETSHOW_PROFILE)")
	fs.StringVar(&cfg.redisAddr, "redis-addr", "", "redis server used to share rooms between relays (env: PETSHOW_REDIS_ADDR)")
	fs.StringVar(&cfg.redisPassword, "redis-password", "", "redis password (env: PETSHOW_REDIS_PASSWORD)")
	fs.DurationVar(&cfg.roomTimeout, "room-timeout", 60*time.Minute, "time before idle rooms are closed (env: PETSHOW_ROOM_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: PETSHOW_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: PETSHOW_TLS_KEY)")

	bindEnv(v, fs)

	return cmd
}

func newPerformCmd(cfg *Config, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "perform",
		Short: "Join a show room and take turns driving the character.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validatePerform(); err != nil {
				return err
			}
			return Perform(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()

	fs.StringVar(&cfg.clips, "clips", "", "path to a YAML clip manifest, built-in BuddyDroid clips if unset (env: PETSHOW_CLIPS)")
	fs.BoolVar(&cfg.discover, "discover", false, "find a relay on the local network (env: PETSHOW_DISCOVER)")
	fs.IntVar(&cfg.fps, "fps", 60, "animation frames per second (env: PETSHOW_FPS)")
	fs.DurationVar(&cfg.heartbeat, "heartbeat", election.DefaultHeartbeat, "time between announcements (env: PETSHOW_HEARTBEAT)")
	fs.StringVar(&cfg.id, "id", "", "participant id, random if unset (env: PETSHOW_ID)")
	fs.StringVar(&cfg.redisAddr, "redis-addr", "", "join the room through redis instead of a relay (env: PETSHOW_REDIS_ADDR)")
	fs.StringVar(&cfg.redisPassword, "redis-password", "", "redis password (env: PETSHOW_REDIS_PASSWORD)")
	fs.StringVarP(&cfg.relayURL, "relay", "r", "", "websocket URL of a relay room (env: PETSHOW_RELAY)")
	fs.StringVar(&cfg.room, "room", "lobby", "room to join when discovering or using redis (env: PETSHOW_ROOM)")
	fs.DurationVar(&cfg.window, "window", election.DefaultWindow, "silence after which the driver is presumed gone (env: PETSHOW_WINDOW)")

	bindEnv(v, fs)

	return cmd
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("PETSHOW")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "petshow",
		Short:         "A pet that wanders between screens, driven by one participant at a time.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
	}

	pfs := cmd.PersistentFlags()
	pfs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: PETSHOW_VERBOSE)")
	bindEnv(v, pfs)

	fs := cmd.Flags()
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit")

	cmd.AddCommand(newRelayCmd(cfg, v), newPerformCmd(cfg, v))

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("petshow v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
