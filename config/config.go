package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// 权威模型：relay 由客户端上报状态，authoritative 由服务端模拟
const (
	PolicyRelay         = "relay"
	PolicyAuthoritative = "authoritative"
)

// Config 服务整体配置（YAML 文件 → .env → ARENA_* 环境变量 → 命令行参数，逐层覆盖）
type Config struct {
	Addr string `yaml:"addr"`

	Room  RoomConfig  `yaml:"room"`
	Relay RelayConfig `yaml:"relay"`
	Sim   SimConfig   `yaml:"sim"`
	Log   LogConfig   `yaml:"log"`
	NATS  NATSConfig  `yaml:"nats"`
	Redis RedisConfig `yaml:"redis"`
}

// RoomConfig 房间规则
type RoomConfig struct {
	DefaultName    string        `yaml:"default_name"`
	Capacity       int           `yaml:"capacity"`
	Policy         string        `yaml:"policy"`
	MaxHP          int           `yaml:"max_hp"`
	AimOffsetLimit float64       `yaml:"aim_offset_limit"` // 弧度
	IdleTTL        time.Duration `yaml:"idle_ttl"`         // 空房间保留多久后回收
}

// RelayConfig 纯转发策略
type RelayConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// SimConfig 权威模拟策略（单位：竞技场坐标/秒）
type SimConfig struct {
	Interval     time.Duration `yaml:"interval"`
	MaxHP        int           `yaml:"max_hp"`
	ArenaRadius  float64       `yaml:"arena_radius"`
	PlayerRadius float64       `yaml:"player_radius"`
	BulletRadius float64       `yaml:"bullet_radius"`
	MoveSpeed    float64       `yaml:"move_speed"`
	BulletSpeed  float64       `yaml:"bullet_speed"`
	BulletMargin float64       `yaml:"bullet_margin"`
	ShotCooldown time.Duration `yaml:"shot_cooldown"`
}

// LogConfig 日志输出（lumberjack 滚动）
type LogConfig struct {
	File       string `yaml:"file"`
	Level      string `yaml:"level"`
	Console    bool   `yaml:"console"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// NATSConfig 生命周期事件发布，URL 为空则不启用
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// RedisConfig 房间在线信息镜像，Addr 为空则不启用
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// Default 返回默认配置
func Default() Config {
	return Config{
		Addr: ":8787",
		Room: RoomConfig{
			DefaultName:    "lobby",
			Capacity:       3,
			Policy:         PolicyRelay,
			MaxHP:          300,
			AimOffsetLimit: 0.8,
			IdleTTL:        5 * time.Minute,
		},
		Relay: RelayConfig{Interval: 33 * time.Millisecond},
		Sim: SimConfig{
			Interval:     50 * time.Millisecond,
			MaxHP:        20,
			ArenaRadius:  450,
			PlayerRadius: 40,
			BulletRadius: 8,
			MoveSpeed:    400,
			BulletSpeed:  700,
			BulletMargin: 50,
			ShotCooldown: 120 * time.Millisecond,
		},
		Log: LogConfig{
			File:       "app.log",
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
		NATS:  NATSConfig{SubjectPrefix: "arena.rooms"},
		Redis: RedisConfig{TTL: time.Minute},
	}
}

// Load 读取配置：path 为空或文件不存在时使用默认值
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	// .env 可选，不存在时忽略
	_ = godotenv.Load()
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setString("ARENA_ADDR", &c.Addr)
	setString("ARENA_DEFAULT_ROOM", &c.Room.DefaultName)
	setString("ARENA_POLICY", &c.Room.Policy)
	setString("ARENA_LOG_FILE", &c.Log.File)
	setString("ARENA_LOG_LEVEL", &c.Log.Level)
	setString("ARENA_NATS_URL", &c.NATS.URL)
	setString("ARENA_REDIS_ADDR", &c.Redis.Addr)
	setString("ARENA_REDIS_PASSWORD", &c.Redis.Password)

	if v, ok := os.LookupEnv("ARENA_CAPACITY"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ARENA_CAPACITY: %w", err)
		}
		c.Room.Capacity = n
	}
	return nil
}

// Validate 校验配置合法性
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is empty")
	}
	if c.Room.DefaultName == "" {
		return errors.New("room.default_name is empty")
	}
	if c.Room.Capacity < 2 || c.Room.Capacity > 3 {
		return fmt.Errorf("room.capacity must be 2 or 3, got %d", c.Room.Capacity)
	}
	if c.Room.Policy != PolicyRelay && c.Room.Policy != PolicyAuthoritative {
		return fmt.Errorf("room.policy must be %q or %q, got %q", PolicyRelay, PolicyAuthoritative, c.Room.Policy)
	}
	if c.Room.MaxHP <= 0 || c.Sim.MaxHP <= 0 {
		return errors.New("max_hp must be positive")
	}
	if c.Room.AimOffsetLimit < 0 {
		return errors.New("room.aim_offset_limit must not be negative")
	}
	if c.Relay.Interval <= 0 || c.Sim.Interval <= 0 {
		return errors.New("tick intervals must be positive")
	}
	if c.Sim.ArenaRadius <= c.Sim.PlayerRadius || c.Sim.PlayerRadius <= 0 {
		return errors.New("sim.arena_radius must exceed sim.player_radius > 0")
	}
	if c.Sim.MoveSpeed < 0 || c.Sim.BulletSpeed <= 0 || c.Sim.BulletMargin < 0 {
		return errors.New("sim speeds and margin out of range")
	}
	return nil
}

// TickInterval 当前策略对应的 Tick 间隔
func (c Config) TickInterval() time.Duration {
	if c.Room.Policy == PolicyAuthoritative {
		return c.Sim.Interval
	}
	return c.Relay.Interval
}
