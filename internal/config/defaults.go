package config

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Scheduler: SchedulerSettings{
			AutoAssign: true,
			LoadBalancing: LoadBalancingConfig{
				Enabled:                  true,
				Strategy:                 "balanced",
				MaxReassignmentsPerCycle: 3,
				UtilizationThreshold:     80,
			},
		},
		Server: ServerConfig{
			Addr:     ":8390",
			LogLevel: "info",
		},
	}
}
