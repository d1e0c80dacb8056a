package config

import "time"

type RefreshConfig interface {
	GetRefreshBuffer() time.Duration
	GetSweepInterval() time.Duration
	GetSweepPacing() time.Duration
	GetSweepOnStart() bool
}

type Refresh struct{}

var _ RefreshConfig = Refresh{}

func (Refresh) GetRefreshBuffer() time.Duration {
	return GetDuration("REFRESH_BUFFER", 5*time.Minute)
}

func (Refresh) GetSweepInterval() time.Duration {
	return GetDuration("SWEEP_INTERVAL", 7*24*time.Hour)
}

func (Refresh) GetSweepPacing() time.Duration {
	return GetDuration("SWEEP_PACING", time.Second)
}

func (Refresh) GetSweepOnStart() bool {
	return GetBool("SWEEP_ON_START", false)
}
