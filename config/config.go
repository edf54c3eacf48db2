package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/voantyh/tapioca-bar-audit/internal/domain"
)

// Config es la configuración completa del liquidation queue.
type Config struct {
	Queue   QueueConfig   `yaml:"queue"`
	Swapper SwapperConfig `yaml:"swapper"`
	Keeper  KeeperConfig  `yaml:"keeper"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// QueueConfig son los parámetros de Init. Los amounts van como strings
// decimales en unidades enteras del activo ("1_000_000" vale).
type QueueConfig struct {
	MarketName             string            `yaml:"market_name"`
	ActivationDelaySeconds int               `yaml:"activation_delay_seconds"`
	MinBidAmount           string            `yaml:"min_bid_amount"`
	DefaultBidAmount       string            `yaml:"default_bid_amount"`
	PoolMinimums           map[int]string    `yaml:"pool_minimums"` // override por pool
	FeeBps                 *uint64           `yaml:"fee_bps"`          // nil → 50; 0 es válido
	PremiumStepBps         *uint64           `yaml:"premium_step_bps"` // nil → 100; 0 es válido
	Accounts               AccountsConfig    `yaml:"accounts"`
	Assets                 AssetsConfig      `yaml:"assets"`
	Decimals               DecimalsConfig    `yaml:"decimals"`
	Labels                 map[string]string `yaml:"labels"` // alias → dirección para la CLI
}

// AccountsConfig son las cuentas del custody ledger.
type AccountsConfig struct {
	Queue        string `yaml:"queue"`
	Market       string `yaml:"market"`
	FeeCollector string `yaml:"fee_collector"`
	Admin        string `yaml:"admin"`
}

// AssetsConfig son los ids de activo en el custody ledger.
type AssetsConfig struct {
	Bid        uint64 `yaml:"bid"`
	Market     uint64 `yaml:"market"`
	Liquidated uint64 `yaml:"liquidated"`
}

// DecimalsConfig solo afecta a la presentación de amounts.
type DecimalsConfig struct {
	Bid        int32 `yaml:"bid"`
	Liquidated int32 `yaml:"liquidated"`
}

// SwapperConfig describe los pools constant-product que usan bid-stable y,
// si el bid asset difiere del market asset, la ejecución. Sin pools se usa
// el adapter pass-through.
type SwapperConfig struct {
	Router string       `yaml:"router"` // cuenta intermedia de las rutas multi-hop
	Pools  []PoolConfig `yaml:"pools"`
}

// PoolConfig es un pool entre dos activos; sus reservas son los saldos de
// Account en el custody ledger.
type PoolConfig struct {
	Account string `yaml:"account"`
	AssetA  uint64 `yaml:"asset_a"`
	AssetB  uint64 `yaml:"asset_b"`
	FeeBps  uint64 `yaml:"fee_bps"`
}

// KeeperConfig controla el loop de activación automática.
type KeeperConfig struct {
	IntervalSeconds int     `yaml:"interval_seconds"`
	RatePerSec      float64 `yaml:"rate_per_sec"`
	Burst           int     `yaml:"burst"`
	Caller          string  `yaml:"caller"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN                string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
	EventRetentionDays int    `yaml:"event_retention_days"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// QueueMeta convierte la sección queue en la meta de Init.
func (c *Config) QueueMeta() (domain.QueueMeta, error) {
	q := c.Queue
	minBid, err := domain.ParseAmount(q.MinBidAmount)
	if err != nil {
		return domain.QueueMeta{}, fmt.Errorf("config.QueueMeta: min_bid_amount: %w", err)
	}
	defBid, err := domain.ParseAmount(q.DefaultBidAmount)
	if err != nil {
		return domain.QueueMeta{}, fmt.Errorf("config.QueueMeta: default_bid_amount: %w", err)
	}

	m := domain.QueueMeta{
		ActivationDelay:   c.ActivationDelay(),
		MinBidAmount:      minBid,
		DefaultBidAmount:  defBid,
		FeeBps:            *q.FeeBps,
		PremiumStepBps:    *q.PremiumStepBps,
		MarketName:        q.MarketName,
		BidAssetID:        domain.AssetID(q.Assets.Bid),
		MarketAssetID:     domain.AssetID(q.Assets.Market),
		LiquidatedAssetID: domain.AssetID(q.Assets.Liquidated),
	}
	for _, acct := range []struct {
		name string
		raw  string
		dst  *common.Address
	}{
		{"queue", q.Accounts.Queue, &m.Queue},
		{"market", q.Accounts.Market, &m.Market},
		{"fee_collector", q.Accounts.FeeCollector, &m.FeeCollector},
		{"admin", q.Accounts.Admin, &m.Admin},
	} {
		if acct.raw == "" {
			continue
		}
		addr, err := c.Resolve(acct.raw)
		if err != nil {
			return domain.QueueMeta{}, fmt.Errorf("config.QueueMeta: accounts.%s: %w", acct.name, err)
		}
		*acct.dst = addr
	}

	if len(q.PoolMinimums) > 0 {
		m.PoolMinimums = make(map[int]uint256.Int, len(q.PoolMinimums))
		for pool, s := range q.PoolMinimums {
			v, err := domain.ParseAmount(s)
			if err != nil {
				return domain.QueueMeta{}, fmt.Errorf("config.QueueMeta: pool_minimums[%d]: %w", pool, err)
			}
			m.PoolMinimums[pool] = v
		}
	}
	return m, nil
}

// ActivationDelay devuelve el delay como time.Duration.
func (c *Config) ActivationDelay() time.Duration {
	return time.Duration(c.Queue.ActivationDelaySeconds) * time.Second
}

// KeeperInterval devuelve el intervalo del keeper como time.Duration.
func (c *Config) KeeperInterval() time.Duration {
	return time.Duration(c.Keeper.IntervalSeconds) * time.Second
}

// EventRetention devuelve cuánto se guardan los eventos (0 = siempre).
func (c *Config) EventRetention() time.Duration {
	return time.Duration(c.Storage.EventRetentionDays) * 24 * time.Hour
}

// Resolve convierte un alias de labels o una dirección hex en common.Address.
func (c *Config) Resolve(s string) (common.Address, error) {
	if v, ok := c.Queue.Labels[s]; ok {
		s = v
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("config.Resolve: %q is not an address or known label", s)
	}
	return common.HexToAddress(s), nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("LQ_DB"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("LQ_MARKET"); v != "" {
		cfg.Queue.Accounts.Market = v
	}
	if v := os.Getenv("LQ_ADMIN"); v != "" {
		cfg.Queue.Accounts.Admin = v
	}
	if v := os.Getenv("LQ_KEEPER_CALLER"); v != "" {
		cfg.Keeper.Caller = v
	}
	if v := os.Getenv("LQ_ACTIVATION_DELAY_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Queue.ActivationDelaySeconds = n
		}
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Queue.ActivationDelaySeconds <= 0 {
		cfg.Queue.ActivationDelaySeconds = 600
	}
	if cfg.Queue.MinBidAmount == "" {
		cfg.Queue.MinBidAmount = "1"
	}
	if cfg.Queue.DefaultBidAmount == "" {
		cfg.Queue.DefaultBidAmount = cfg.Queue.MinBidAmount
	}
	if cfg.Queue.FeeBps == nil {
		v := uint64(domain.DefaultFeeBps)
		cfg.Queue.FeeBps = &v
	}
	if cfg.Queue.PremiumStepBps == nil {
		v := uint64(domain.DefaultPremiumStepBps)
		cfg.Queue.PremiumStepBps = &v
	}
	if cfg.Queue.Assets.Market == 0 {
		cfg.Queue.Assets.Market = cfg.Queue.Assets.Bid
	}
	for i := range cfg.Swapper.Pools {
		if cfg.Swapper.Pools[i].FeeBps == 0 {
			cfg.Swapper.Pools[i].FeeBps = 30 // 0.3%
		}
	}
	if cfg.Keeper.IntervalSeconds <= 0 {
		cfg.Keeper.IntervalSeconds = 30
	}
	if cfg.Keeper.RatePerSec <= 0 {
		cfg.Keeper.RatePerSec = 5
	}
	if cfg.Keeper.Burst <= 0 {
		cfg.Keeper.Burst = 1
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "liqqueue.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
