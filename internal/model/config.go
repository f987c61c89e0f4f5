package model

import "time"

// Config is the full process configuration. Both roles read the same
// file but each uses only its own section plus the shared ones; the
// credential material is deliberately split so that no single config
// carries both keys.
type Config struct {
	Ledger    LedgerConfig    `mapstructure:"ledger" yaml:"ledger"`
	Corpus    CorpusConfig    `mapstructure:"corpus" yaml:"corpus"`
	Split     SplitConfig     `mapstructure:"split" yaml:"split"`
	Match     MatchConfig     `mapstructure:"match" yaml:"match"`
	Embedding EmbeddingConfig `mapstructure:"embedding" yaml:"embedding"`
	Verifier  VerifierConfig  `mapstructure:"verifier" yaml:"verifier"`
	Executor  ExecutorConfig  `mapstructure:"executor" yaml:"executor"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Events    EventsConfig    `mapstructure:"events" yaml:"events"`
}

// LedgerConfig points at the node's JSON-RPC endpoint.
type LedgerConfig struct {
	Host              string        `mapstructure:"host" yaml:"host"`
	Port              int           `mapstructure:"port" yaml:"port"`
	Username          string        `mapstructure:"username" yaml:"username"`
	Password          string        `mapstructure:"password" yaml:"password"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
}

// CorpusConfig locates the content-addressed reference corpus.
type CorpusConfig struct {
	Gateway  string        `mapstructure:"gateway" yaml:"gateway"`
	CID      string        `mapstructure:"cid" yaml:"cid"`
	CacheDir string        `mapstructure:"cache_dir" yaml:"cache_dir"`
	CacheTTL time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
}

// SplitConfig carries the economic parameters of the split. The ratio
// itself is a compile-time constant and deliberately not configurable.
type SplitConfig struct {
	NetworkFee string `mapstructure:"network_fee" yaml:"network_fee"`
	DustFloor  string `mapstructure:"dust_floor" yaml:"dust_floor"`
}

// MatchConfig holds the protocol-level match parameters.
type MatchConfig struct {
	Threshold float64 `mapstructure:"threshold" yaml:"threshold"`
}

// EmbeddingConfig selects the embedding provider for the matcher.
// Provider "" or "local" uses the deterministic hash projection; "openai"
// calls the embeddings API.
type EmbeddingConfig struct {
	Provider string `mapstructure:"provider" yaml:"provider"`
	Model    string `mapstructure:"model" yaml:"model"`
	APIKey   string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	BaseURL  string `mapstructure:"base_url" yaml:"base_url,omitempty"`
	Timeout  int    `mapstructure:"timeout" yaml:"timeout"` // seconds
}

// VerifierConfig is the observe-only role. ViewingKey grants read access
// to the watched address and nothing else.
type VerifierConfig struct {
	ViewingKey       string        `mapstructure:"viewing_key" yaml:"viewing_key"`
	WatchAddress     string        `mapstructure:"watch_address" yaml:"watch_address"`
	PollInterval     time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	MinConfirmations int           `mapstructure:"min_confirmations" yaml:"min_confirmations"`
	ExecutorURL      string        `mapstructure:"executor_url" yaml:"executor_url"`
	IssuerID         string        `mapstructure:"issuer_id" yaml:"issuer_id"`
	AttestationSeed  string        `mapstructure:"attestation_seed" yaml:"attestation_seed"` // hex ed25519 seed
}

// ExecutorConfig is the spend-only role. SpendingKey authorizes transfers
// from the source address; the attestation public key is the only trust
// anchor for incoming signals.
type ExecutorConfig struct {
	SpendingKey          string        `mapstructure:"spending_key" yaml:"spending_key"`
	SourceAddress        string        `mapstructure:"source_address" yaml:"source_address"`
	PrimaryAddress       string        `mapstructure:"primary_address" yaml:"primary_address"`
	SecondaryAddress     string        `mapstructure:"secondary_address" yaml:"secondary_address"`
	ListenAddr           string        `mapstructure:"listen_addr" yaml:"listen_addr"`
	MinAmount            string        `mapstructure:"min_amount" yaml:"min_amount"` // override; empty = derived
	IssuerID             string        `mapstructure:"issuer_id" yaml:"issuer_id"`
	AttestationPublicKey string        `mapstructure:"attestation_public_key" yaml:"attestation_public_key"` // hex ed25519
	StalenessWindow      time.Duration `mapstructure:"staleness_window" yaml:"staleness_window"`
	OperationTimeout     time.Duration `mapstructure:"operation_timeout" yaml:"operation_timeout"`
}

// StoreConfig selects the split-record store backend.
type StoreConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"` // "memory" or "postgres"
	DSN    string `mapstructure:"dsn" yaml:"dsn,omitempty"`
}

// EventsConfig enables split-completed event publication when brokers are
// configured.
type EventsConfig struct {
	Brokers []string `mapstructure:"brokers" yaml:"brokers,omitempty"`
	Topic   string   `mapstructure:"topic" yaml:"topic"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Ledger: LedgerConfig{
			Host:              "localhost",
			Port:              8232,
			Timeout:           30 * time.Second,
			RequestsPerSecond: 4,
		},
		Corpus: CorpusConfig{
			Gateway:  "https://gateway.pinata.cloud",
			CacheTTL: time.Hour,
		},
		Split: SplitConfig{
			NetworkFee: "0.0001",
			DustFloor:  "0.00000546",
		},
		Match: MatchConfig{
			Threshold: 0.75,
		},
		Embedding: EmbeddingConfig{
			Provider: "local",
			Timeout:  30,
		},
		Verifier: VerifierConfig{
			PollInterval:     10 * time.Second,
			MinConfirmations: 1,
			ExecutorURL:      "http://localhost:3001",
			IssuerID:         "sanctum-verifier",
		},
		Executor: ExecutorConfig{
			ListenAddr:       ":3001",
			IssuerID:         "sanctum-verifier",
			StalenessWindow:  5 * time.Minute,
			OperationTimeout: 2 * time.Minute,
		},
		Store: StoreConfig{
			Driver: "memory",
		},
		Events: EventsConfig{
			Topic: "split.completed",
		},
	}
}
