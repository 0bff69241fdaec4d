// /internal/config/config.go
package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

func init() {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found, falling back to system environment variables")
	}
}

type Config struct {
	DiscordToken string `env:"DISCORD_TOKEN,required"`
	GuildID      string `env:"GUILD_ID,required"`

	MQTTURL      string `env:"MQTT_URL"`
	MQTTTopic    string `env:"MQTT_TOPIC" envDefault:"switches/events"`
	MQTTUsername string `env:"MQTT_USERNAME"`
	MQTTPassword string `env:"MQTT_PASSWORD"`

	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8787"`
	DevicesPath string `env:"DEVICES_PATH" envDefault:"devices.json"`

	DefaultDeviceID string `env:"DEFAULT_DEVICE_ID" envDefault:"legacy"`
	SwitchCount     int    `env:"SWITCH_COUNT" envDefault:"3"`
	MoveCooldownMs  int    `env:"MOVE_COOLDOWN_MS" envDefault:"5000"`
	HoldTimeMs      int    `env:"HOLD_TIME_MS" envDefault:"5000"`
}

func New() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MoveCooldown returns the per-user cooldown as a duration.
func (c *Config) MoveCooldown() time.Duration {
	return time.Duration(c.MoveCooldownMs) * time.Millisecond
}

// HoldTime returns the hold-timer duration applied to devices without their own override.
func (c *Config) HoldTime() time.Duration {
	return time.Duration(c.HoldTimeMs) * time.Millisecond
}
