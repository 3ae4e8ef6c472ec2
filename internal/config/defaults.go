package config

import "time"

// Default tier populations: tier 0 is updated most frequently and
// carries the most streams.
var defaultTierCounts = []int{100, 50, 25, 10, 5}

func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Dir:               "./swmr-store",
			RecordSize:        ByteSize(64),
			TickLen:           4,
			MaxLag:            5,
			MetaPagesReserved: 128,
			MetaFilePath:      "SNAPSHOT",
			PageCacheBytes:    ByteSize(4096),
		},
		Reader: ReaderConfig{
			PollInterval: Duration(1 * time.Second),
			NCommon:      5,
			NRandom:      10,
			TierCounts:   append([]int(nil), defaultTierCounts...),
		},
		Journal: JournalConfig{
			Enabled: false,
			Dir:     ".",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: false,
				Listen:  ":9090",
				Path:    "/metrics",
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "console",
			},
		},
	}
}
