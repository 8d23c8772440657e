package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"

	EngineRandom = "random"
	EngineUCI    = "uci"
)

type Configuration struct {
	Server struct {
		Host    string `envconfig:"SERVER_HOST" default:"0.0.0.0"`
		Port    string `envconfig:"SERVER_PORT" default:"8080"`
		GinMode string `envconfig:"GIN_MODE" default:"release"`
	}
	Log struct {
		Level  string `envconfig:"LOG_LEVEL" default:"info"`
		Format string `envconfig:"LOG_FORMAT" default:"text"`
	}
	Lobby struct {
		Backend         string        `envconfig:"LOBBY_BACKEND" default:"memory"`
		RoomTTL         time.Duration `envconfig:"LOBBY_ROOM_TTL" default:"2h"`
		PresenceTimeout time.Duration `envconfig:"LOBBY_PRESENCE_TIMEOUT" default:"30s"`
		CallTimeout     time.Duration `envconfig:"LOBBY_CALL_TIMEOUT" default:"1s"`
	}
	Database struct {
		Address      string `envconfig:"MONGO_ADDRESS" default:"mongodb://localhost:27017"`
		DatabaseName string `envconfig:"MONGO_DATABASE" default:"chess"`
		Collection   string `envconfig:"MONGO_COLLECTION" default:"rooms"`
	}
	Redis struct {
		Address  string `envconfig:"REDIS_ADDRESS" default:"localhost:6379"`
		Password string `envconfig:"REDIS_PASSWORD"`
		DB       int    `envconfig:"REDIS_DB" default:"0"`
		Prefix   string `envconfig:"REDIS_PREFIX" default:"chess"`
	}
	Game struct {
		Validation string        `envconfig:"GAME_VALIDATION" default:"pseudo"`
		SessionTTL time.Duration `envconfig:"GAME_SESSION_TTL" default:"1h"`
		AITimeout  time.Duration `envconfig:"GAME_AI_TIMEOUT" default:"5s"`
	}
	AI struct {
		Engine string `envconfig:"AI_ENGINE" default:"random"`
		Seed   int64  `envconfig:"AI_SEED" default:"0"`
	}
	Stockfish struct {
		Path  string   `envconfig:"STOCKFISH_PATH" default:"stockfish"`
		Args  []string `envconfig:"STOCKFISH_ARGS"`
		Depth int      `envconfig:"STOCKFISH_DEPTH" default:"8"`
	}
}

func InitConfig() (*Configuration, error) {
	var cfg Configuration
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Configuration) Validate() error {
	switch c.Lobby.Backend {
	case BackendMemory, BackendRedis, BackendMongo:
	default:
		return fmt.Errorf("LOBBY_BACKEND must be one of memory, redis, mongo; got %q", c.Lobby.Backend)
	}
	switch c.Game.Validation {
	case "pseudo", "basic":
	default:
		return fmt.Errorf("GAME_VALIDATION must be pseudo or basic; got %q", c.Game.Validation)
	}
	switch c.AI.Engine {
	case EngineRandom, EngineUCI:
	default:
		return fmt.Errorf("AI_ENGINE must be random or uci; got %q", c.AI.Engine)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json; got %q", c.Log.Format)
	}
	if c.Lobby.RoomTTL <= 0 || c.Game.SessionTTL <= 0 {
		return fmt.Errorf("LOBBY_ROOM_TTL and GAME_SESSION_TTL must be positive")
	}
	return nil
}

func (c *Configuration) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// SelfplayConfiguration drives cmd/selfplay.
type SelfplayConfiguration struct {
	Log struct {
		Level  string `envconfig:"LOG_LEVEL" default:"warn"`
		Format string `envconfig:"LOG_FORMAT" default:"text"`
	}
	Selfplay struct {
		White    string        `envconfig:"SELFPLAY_WHITE" default:"random"`
		Black    string        `envconfig:"SELFPLAY_BLACK" default:"random"`
		MaxPlies int           `envconfig:"SELFPLAY_MAX_PLIES" default:"200"`
		Seed     int64         `envconfig:"SELFPLAY_SEED" default:"0"`
		Timeout  time.Duration `envconfig:"SELFPLAY_MOVE_TIMEOUT" default:"5s"`
		Verbose  bool          `envconfig:"SELFPLAY_VERBOSE" default:"false"`
	}
	Stockfish struct {
		Path  string   `envconfig:"STOCKFISH_PATH" default:"stockfish"`
		Args  []string `envconfig:"STOCKFISH_ARGS"`
		Depth int      `envconfig:"STOCKFISH_DEPTH" default:"8"`
	}
}

func InitSelfplayConfig() (*SelfplayConfiguration, error) {
	var cfg SelfplayConfiguration
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	for _, side := range []string{cfg.Selfplay.White, cfg.Selfplay.Black} {
		if side != EngineRandom && side != EngineUCI {
			return nil, fmt.Errorf("SELFPLAY_WHITE/SELFPLAY_BLACK must be random or uci; got %q", side)
		}
	}
	if cfg.Selfplay.MaxPlies <= 0 {
		return nil, fmt.Errorf("SELFPLAY_MAX_PLIES must be positive")
	}
	return &cfg, nil
}
