package main

import (
	"birdnest/internal/backoff"
	"birdnest/internal/config"
	"birdnest/internal/feed"
	"birdnest/internal/geometry"
	"birdnest/internal/monitor"
)

func backoffOptions(b config.Backoff) backoff.Options {
	return backoff.Options{
		InitialDelay:      b.InitialDelay,
		IncreaseFactor:    b.IncreaseFactor,
		DecreaseFactor:    b.DecreaseFactor,
		DecreaseThreshold: b.DecreaseThreshold,
		MaxDelay:          b.MaxDelay,
		MaxFails:          b.MaxFails,
	}
}

func clientConfig(c config.Client) feed.ClientConfig {
	return feed.ClientConfig{URL: c.URL, Timeout: c.Timeout, StallWarning: c.StallWarning}
}

func monitorConfig(cfg *config.Config) monitor.Config {
	return monitor.Config{
		PollInterval:      cfg.Monitor.PollInterval,
		MaxPositions:      cfg.Monitor.MaxPositions,
		ViolationTTL:      cfg.Monitor.ViolationTTL,
		DegradedThreshold: cfg.Monitor.DegradedThreshold,
		DegradedDelay:     cfg.Monitor.DegradedDelay,
		Zone:              geometry.Zone{NestX: cfg.Zone.NestX, NestY: cfg.Zone.NestY, Radius: cfg.Zone.Radius},
	}
}

func watchdogConfig(cfg *config.Config) monitor.WatchdogConfig {
	return monitor.WatchdogConfig{Interval: cfg.Watchdog.Interval, CycleLogInterval: cfg.Watchdog.CycleLogInterval}
}
