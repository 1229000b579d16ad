// Package config loads the match configuration. Everything the core needs is
// carried in an explicit Config struct handed to constructors; nothing reads
// ambient state after Load returns.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/warfront/simcore/pkg/core"
)

// Config is the full daemon configuration, loaded once at match start. It is
// never mutated mid-match except through explicit admin operations.
type Config struct {
	LogLevel string `json:"logLevel" mapstructure:"logLevel"`
	LogsDir  string `json:"logsDir" mapstructure:"logsDir"`

	Match     MatchConfig          `json:"match" mapstructure:"match"`
	Sim       SimConfig            `json:"sim" mapstructure:"sim"`
	Zones     []ZoneConfig         `json:"zones" mapstructure:"zones"`
	Squads    map[string]SizeRange `json:"squads" mapstructure:"squads"`
	Director  DirectorConfig       `json:"director" mapstructure:"director"`
	Budget    BudgetConfig         `json:"budget" mapstructure:"budget"`
	Map       MapConfig            `json:"map" mapstructure:"map"`
	Storage   StorageConfig        `json:"storage" mapstructure:"storage"`
	DB        DBConfig             `json:"db" mapstructure:"db"`
	API       APIConfig            `json:"api" mapstructure:"api"`
	Influx    InfluxConfig         `json:"influx" mapstructure:"influx"`
	Graylog   GraylogConfig        `json:"graylog" mapstructure:"graylog"`
}

// MatchConfig names the match and the two opposing factions.
type MatchConfig struct {
	Name     string `json:"name" mapstructure:"name"`
	Tag      string `json:"tag" mapstructure:"tag"`
	FactionA string `json:"factionA" mapstructure:"factionA"`
	FactionB string `json:"factionB" mapstructure:"factionB"`
}

// SimConfig holds the core tick, ticket and lifecycle tuning.
type SimConfig struct {
	TickRate           float64 `json:"tickRate" mapstructure:"tickRate"`                     // ticks per second the host drives
	CellSize           float64 `json:"cellSize" mapstructure:"cellSize"`                     // spatial grid cell edge, metres
	MaxTickets         float64 `json:"maxTickets" mapstructure:"maxTickets"`                 // starting tickets per faction
	SetupDuration      float64 `json:"setupDuration" mapstructure:"setupDuration"`           // seconds of SETUP, no bleed
	MatchDuration      float64 `json:"matchDuration" mapstructure:"matchDuration"`           // seconds of COMBAT before time limit
	OvertimeCap        float64 `json:"overtimeCap" mapstructure:"overtimeCap"`               // seconds; 0 means overtime runs until decided
	ClosenessThreshold float64 `json:"closenessThreshold" mapstructure:"closenessThreshold"` // ticket gap that extends into overtime
	DeathPenalty       float64 `json:"deathPenalty" mapstructure:"deathPenalty"`             // tickets deducted per death
	KillTarget         int     `json:"killTarget" mapstructure:"killTarget"`                 // >0 enables team-deathmatch victory
	RespawnDelay       float64 `json:"respawnDelay" mapstructure:"respawnDelay"`             // seconds
	DamageHistoryLimit int     `json:"damageHistoryLimit" mapstructure:"damageHistoryLimit"` // rolling entries kept per combatant
	AssistWindow       float64 `json:"assistWindow" mapstructure:"assistWindow"`             // seconds damage stays assist-eligible
	DwellThreshold     float64 `json:"dwellThreshold" mapstructure:"dwellThreshold"`         // seconds before capture progress accrues
	MaxBleedRate       float64 `json:"maxBleedRate" mapstructure:"maxBleedRate"`             // tickets/second at total zone control
	DefaultHealth      int     `json:"defaultHealth" mapstructure:"defaultHealth"`
	FormationSpread    float64 `json:"formationSpread" mapstructure:"formationSpread"` // metres between squad members at spawn
}

// ZoneConfig describes one capture zone.
type ZoneConfig struct {
	ID           string          `json:"id" mapstructure:"id"`
	Name         string          `json:"name" mapstructure:"name"`
	Position     core.Position3D `json:"position" mapstructure:"position"`
	Radius       float64         `json:"radius" mapstructure:"radius"`
	CaptureSpeed float64         `json:"captureSpeed" mapstructure:"captureSpeed"`
	BleedRate    float64         `json:"bleedRate" mapstructure:"bleedRate"`
	HomeBase     bool            `json:"homeBase" mapstructure:"homeBase"`
	Owner        string          `json:"owner" mapstructure:"owner"`
}

// SizeRange bounds reinforcement squad sizes for one faction.
type SizeRange struct {
	Min int `json:"min" mapstructure:"min"`
	Max int `json:"max" mapstructure:"max"`
}

// DirectorConfig tunes the materialization director.
type DirectorConfig struct {
	MaterializeRadius   float64 `json:"materializeRadius" mapstructure:"materializeRadius"`     // metres
	DematerializeRadius float64 `json:"dematerializeRadius" mapstructure:"dematerializeRadius"` // metres, strictly larger
	MaxMaterialized     int     `json:"maxMaterialized" mapstructure:"maxMaterialized"`
	AbstractInterval    float64 `json:"abstractInterval" mapstructure:"abstractInterval"` // seconds between abstract combat rounds
	UpdateInterval      float64 `json:"updateInterval" mapstructure:"updateInterval"`     // seconds between director passes
	ReinforceCooldown   float64 `json:"reinforceCooldown" mapstructure:"reinforceCooldown"`
	EngagementRange     float64 `json:"engagementRange" mapstructure:"engagementRange"` // metres, abstract combat pairing radius
	CasualtyChance      float64 `json:"casualtyChance" mapstructure:"casualtyChance"`   // per contact per abstract round
}

// BudgetConfig bounds per-tick compute. These are operational tuning
// constants, surfaced as configuration rather than baked into the scheduler.
type BudgetConfig struct {
	RaycastsPerTick  int     `json:"raycastsPerTick" mapstructure:"raycastsPerTick"`
	AIHighPerTick    int     `json:"aiHighPerTick" mapstructure:"aiHighPerTick"`
	AIMediumPerTick  int     `json:"aiMediumPerTick" mapstructure:"aiMediumPerTick"`
	AITimeBudget     float64 `json:"aiTimeBudget" mapstructure:"aiTimeBudget"`         // seconds of director/AI work per tick
	SevereMultiplier float64 `json:"severeMultiplier" mapstructure:"severeMultiplier"` // overruns beyond budget*multiplier count as severe
}

// MapConfig georeferences the campaign map.
type MapConfig struct {
	Name        string  `json:"name" mapstructure:"name"`
	DisplayName string  `json:"displayName" mapstructure:"displayName"`
	SizeMetres  float64 `json:"sizeMetres" mapstructure:"sizeMetres"`
	Latitude    float64 `json:"latitude" mapstructure:"latitude"`
	Longitude   float64 `json:"longitude" mapstructure:"longitude"`
}

// StorageConfig selects and tunes the after-action recorder backend.
type StorageConfig struct {
	Type      string          `json:"type" mapstructure:"type"` // memory | gorm | websocket | none
	Memory    MemoryConfig    `json:"memory" mapstructure:"memory"`
	Websocket WebsocketConfig `json:"websocket" mapstructure:"websocket"`
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// WebsocketConfig holds live streaming backend settings.
type WebsocketConfig struct {
	URL   string `json:"url" mapstructure:"url"`
	Token string `json:"token" mapstructure:"token"`
}

// DBConfig holds database connection settings for the gorm backend.
type DBConfig struct {
	Driver     string `json:"driver" mapstructure:"driver"` // postgres | sqlite
	Host       string `json:"host" mapstructure:"host"`
	Port       string `json:"port" mapstructure:"port"`
	Username   string `json:"username" mapstructure:"username"`
	Password   string `json:"password" mapstructure:"password"`
	Database   string `json:"database" mapstructure:"database"`
	SQLitePath string `json:"sqlitePath" mapstructure:"sqlitePath"`
}

// APIConfig holds results-server upload settings.
type APIConfig struct {
	ServerURL string `json:"serverUrl" mapstructure:"serverUrl"`
	APIKey    string `json:"apiKey" mapstructure:"apiKey"`
}

// InfluxConfig holds telemetry settings.
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
}

// GraylogConfig holds the optional GELF log sink address.
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// Load reads warsim.cfg.json from configDir, applies defaults, and validates.
func Load(configDir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("warsim.cfg.json")
	v.AddConfigPath(configDir)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logLevel", "info")
	v.SetDefault("logsDir", "./warsimlogs")

	v.SetDefault("match.name", "Untitled Operation")
	v.SetDefault("match.tag", "Op")
	v.SetDefault("match.factionA", string(core.FactionUS))
	v.SetDefault("match.factionB", string(core.FactionNVA))

	v.SetDefault("sim.tickRate", 30.0)
	v.SetDefault("sim.cellSize", 50.0)
	v.SetDefault("sim.maxTickets", 300.0)
	v.SetDefault("sim.setupDuration", 60.0)
	v.SetDefault("sim.matchDuration", 1800.0)
	v.SetDefault("sim.overtimeCap", 300.0)
	v.SetDefault("sim.closenessThreshold", 25.0)
	v.SetDefault("sim.deathPenalty", 2.0)
	v.SetDefault("sim.killTarget", 0)
	v.SetDefault("sim.respawnDelay", 15.0)
	v.SetDefault("sim.damageHistoryLimit", 10)
	v.SetDefault("sim.assistWindow", 10.0)
	v.SetDefault("sim.dwellThreshold", 1.0)
	v.SetDefault("sim.maxBleedRate", 2.0)
	v.SetDefault("sim.defaultHealth", 100)
	v.SetDefault("sim.formationSpread", 3.0)

	v.SetDefault("squads.default.min", 4)
	v.SetDefault("squads.default.max", 9)

	v.SetDefault("director.materializeRadius", 300.0)
	v.SetDefault("director.dematerializeRadius", 400.0)
	v.SetDefault("director.maxMaterialized", 64)
	v.SetDefault("director.abstractInterval", 5.0)
	v.SetDefault("director.updateInterval", 10.0)
	v.SetDefault("director.reinforceCooldown", 60.0)
	v.SetDefault("director.engagementRange", 500.0)
	v.SetDefault("director.casualtyChance", 0.1)

	v.SetDefault("budget.raycastsPerTick", 64)
	v.SetDefault("budget.aiHighPerTick", 8)
	v.SetDefault("budget.aiMediumPerTick", 16)
	v.SetDefault("budget.aiTimeBudget", 0.004)
	v.SetDefault("budget.severeMultiplier", 2.0)

	v.SetDefault("map.name", "quangtri")
	v.SetDefault("map.displayName", "Quang Tri")
	v.SetDefault("map.sizeMetres", 21000.0)
	v.SetDefault("map.latitude", 16.75)
	v.SetDefault("map.longitude", 107.19)

	v.SetDefault("storage.type", "memory")
	v.SetDefault("storage.memory.outputDir", "./recordings")
	v.SetDefault("storage.memory.compressOutput", true)
	v.SetDefault("storage.websocket.url", "ws://localhost:5001/ingest")
	v.SetDefault("storage.websocket.token", "")

	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.username", "postgres")
	v.SetDefault("db.password", "postgres")
	v.SetDefault("db.database", "warsim")
	v.SetDefault("db.sqlitePath", "./warsim.db")

	v.SetDefault("api.serverUrl", "http://localhost:5000")
	v.SetDefault("api.apiKey", "")

	v.SetDefault("influx.enabled", false)
	v.SetDefault("influx.host", "localhost")
	v.SetDefault("influx.port", "8086")
	v.SetDefault("influx.protocol", "http")
	v.SetDefault("influx.token", "")
	v.SetDefault("influx.org", "warsim-metrics")

	v.SetDefault("graylog.enabled", false)
	v.SetDefault("graylog.address", "localhost:12201")
}

// Validate fails fast on configuration invariant violations. A bad config is
// the one condition this system treats as unrecoverable: better to refuse to
// start than to oscillate silently mid-match.
func (c *Config) Validate() error {
	if c.Match.FactionA == "" || c.Match.FactionB == "" {
		return fmt.Errorf("config: both match factions must be set")
	}
	if c.Match.FactionA == c.Match.FactionB {
		return fmt.Errorf("config: match factions must differ, both are %q", c.Match.FactionA)
	}
	if c.Sim.TickRate <= 0 {
		return fmt.Errorf("config: sim.tickRate must be positive, got %v", c.Sim.TickRate)
	}
	if c.Sim.CellSize <= 0 {
		return fmt.Errorf("config: sim.cellSize must be positive, got %v", c.Sim.CellSize)
	}
	if c.Sim.MaxTickets <= 0 {
		return fmt.Errorf("config: sim.maxTickets must be positive, got %v", c.Sim.MaxTickets)
	}
	if c.Sim.DamageHistoryLimit <= 0 {
		return fmt.Errorf("config: sim.damageHistoryLimit must be positive, got %d", c.Sim.DamageHistoryLimit)
	}
	if c.Sim.RespawnDelay < 0 {
		return fmt.Errorf("config: sim.respawnDelay must not be negative, got %v", c.Sim.RespawnDelay)
	}
	if c.Director.DematerializeRadius <= c.Director.MaterializeRadius {
		return fmt.Errorf("config: director.dematerializeRadius (%v) must exceed materializeRadius (%v)",
			c.Director.DematerializeRadius, c.Director.MaterializeRadius)
	}
	if c.Director.MaxMaterialized < 1 {
		return fmt.Errorf("config: director.maxMaterialized must be at least 1, got %d", c.Director.MaxMaterialized)
	}
	if c.Director.AbstractInterval <= 0 || c.Director.UpdateInterval <= 0 {
		return fmt.Errorf("config: director intervals must be positive")
	}
	for faction, r := range c.Squads {
		if r.Min < 1 {
			return fmt.Errorf("config: squads.%s.min must be at least 1, got %d", faction, r.Min)
		}
		if r.Min > r.Max {
			return fmt.Errorf("config: squads.%s min (%d) exceeds max (%d)", faction, r.Min, r.Max)
		}
	}
	if c.Budget.RaycastsPerTick < 0 || c.Budget.AIHighPerTick < 0 || c.Budget.AIMediumPerTick < 0 {
		return fmt.Errorf("config: budget counts must not be negative")
	}
	if c.Budget.SevereMultiplier < 1 {
		return fmt.Errorf("config: budget.severeMultiplier must be at least 1, got %v", c.Budget.SevereMultiplier)
	}
	seen := make(map[string]bool, len(c.Zones))
	for _, z := range c.Zones {
		if z.ID == "" {
			return fmt.Errorf("config: zone %q has empty id", z.Name)
		}
		if seen[z.ID] {
			return fmt.Errorf("config: duplicate zone id %q", z.ID)
		}
		seen[z.ID] = true
		if z.Radius <= 0 {
			return fmt.Errorf("config: zone %q radius must be positive, got %v", z.ID, z.Radius)
		}
		if z.HomeBase && z.Owner == "" {
			return fmt.Errorf("config: home base zone %q must have an owner", z.ID)
		}
		if z.Owner != "" && z.Owner != c.Match.FactionA && z.Owner != c.Match.FactionB {
			return fmt.Errorf("config: zone %q owner %q is not a match faction", z.ID, z.Owner)
		}
	}
	return nil
}

// SquadRange returns the reinforcement size range for a faction, falling back
// to the "default" entry, then to a fixed 4..9.
func (c *Config) SquadRange(faction core.Faction) SizeRange {
	if r, ok := c.Squads[string(faction)]; ok {
		return r
	}
	if r, ok := c.Squads["default"]; ok {
		return r
	}
	return SizeRange{Min: 4, Max: 9}
}
