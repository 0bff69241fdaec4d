// cmd/relay/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"switch-relay/internal/config"
	"switch-relay/internal/discord"
	"switch-relay/internal/ingest"
	"switch-relay/internal/metrics"
	"switch-relay/internal/mqtt"
	"switch-relay/internal/registry"
	"switch-relay/internal/relay"
)

func main() {
	log.Println("[INFO] Starting switch-relay bridge...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.New()
	if err != nil {
		log.Fatal(err)
	}

	metrics.Init()

	reg, err := registry.New(cfg.DevicesPath, registry.Defaults{DefaultDeviceID: cfg.DefaultDeviceID})
	if err != nil {
		log.Fatal(err)
	}
	defer reg.Close()

	bot, err := discord.NewBot(cfg.DiscordToken, cfg.GuildID)
	if err != nil {
		log.Fatal(err)
	}

	clock := relay.SystemClock()
	resolver := relay.NewResolver(reg, cfg.SwitchCount)
	dispatcher := relay.NewDispatcher(bot, clock, cfg.MoveCooldown())
	core := relay.New(resolver, dispatcher, clock, cfg.HoldTime())

	go relay.RunCooldownCleaner(ctx, dispatcher)

	errCh := make(chan error, 1)
	go func() {
		if err := bot.Run(ctx); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	server := ingest.New(cfg.HTTPAddr, core, reg, cfg.DefaultDeviceID)
	go server.Run(ctx)

	if cfg.MQTTURL != "" {
		client, err := mqtt.Connect(ctx, mqtt.Config{
			URL:      cfg.MQTTURL,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
			ClientID: "switch-relay",
		})
		if err != nil {
			log.Fatal(err)
		}

		consumer := mqtt.NewConsumer(client, cfg.MQTTTopic, cfg.DefaultDeviceID, core)
		go func() {
			if err := consumer.Run(ctx); err != nil {
				log.Println("[ERR] MQTT consumer error:", err)
			}
		}()
	} else {
		log.Println("[INFO] MQTT_URL not set, running HTTP ingest only")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Printf("[INFO] Received signal %s, shutting down...\n", s)
		cancel()
	case err := <-errCh:
		if err != nil {
			log.Println("[ERR] Discord bot error:", err)
		}
		cancel()
	case <-ctx.Done():
	}

	log.Println("[INFO] Bridge exited cleanly")
}
