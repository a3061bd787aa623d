package main

import "github.com/nexusfleet/nexus/internal/config"

// loadOverrides builds a config.Overrides from the persistent CLI flags,
// only setting fields the user actually touched.
func loadOverrides() config.Overrides {
	o := config.Overrides{NoDiscovery: flagNoDiscovery, NoHealthCheck: flagNoHealthCheck}
	if flagHost != "" {
		o.Host = &flagHost
	}
	if flagPort != 0 {
		o.Port = &flagPort
	}
	if flagLogLevel != "" {
		o.LogLevel = &flagLogLevel
	}
	return o
}
