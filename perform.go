/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Seednode/petshow/choreo"
	"github.com/Seednode/petshow/relay"
	"github.com/Seednode/petshow/rig"
	"github.com/Seednode/petshow/show"
	"github.com/google/uuid"
)

const discoverTimeout = 10 * time.Second

// openChannel joins the room through whichever transport was configured.
func openChannel(ctx context.Context, cfg *Config) (relay.Channel, error) {
	switch {
	case cfg.redisAddr != "":
		logf(cfg, "SHOW: Joining room %s through redis at %s", cfg.room, cfg.redisAddr)

		return relay.NewRedis(ctx, relay.RedisOptions{
			Addr:     cfg.redisAddr,
			Password: cfg.redisPassword,
			Room:     cfg.room,
		})

	case cfg.discover:
		discoverCtx, cancel := context.WithTimeout(ctx, discoverTimeout)
		defer cancel()

		ep, err := relay.Discover(discoverCtx)
		if err != nil {
			return nil, err
		}

		cfg.relayURL = ep.URL(cfg.room)
		logf(cfg, "SHOW: Discovered relay at %s", cfg.relayURL)
	}

	logf(cfg, "SHOW: Joining %s", cfg.relayURL)

	return relay.DialWebSocket(ctx, cfg.relayURL, relay.WebSocketOptions{Logf: logger(cfg)}), nil
}

func Perform(ctx context.Context, cfg *Config) error {
	logf(cfg, "START: petshow v%s", releaseVersion)

	library, err := rig.LoadLibraryFile(cfg.clips)
	if err != nil {
		return fmt.Errorf("load clips: %w", err)
	}

	id := cfg.id
	if id == "" {
		id = uuid.NewString()
	}

	channel, err := openChannel(ctx, cfg)
	if err != nil {
		return err
	}
	defer channel.Close()

	o := show.New(channel, rig.NewModel(), func() choreo.Mixer { return rig.NewMixer(library) }, show.Options{
		Self:      id,
		Heartbeat: cfg.heartbeat,
		Window:    cfg.window,
		FrameRate: cfg.fps,
		Logf:      logger(cfg),
	})

	return o.Run(ctx)
}
