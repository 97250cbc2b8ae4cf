package main

import "time"

type Config struct {
	Host              string        `env:"HOST,default=localhost"`
	Port              int           `env:"PORT,default=8080"`
	LogLevel          string        `env:"LOG_LEVEL,default=INFO"`
	BadgerFilepath    string        `env:"BADGER_FILEPATH,required=true"`
	AudioDir          string        `env:"AUDIO_DIR,required=true"`
	JWTKey            string        `env:"JWT_KEY,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	RestartInterval   time.Duration `env:"RESTART_INTERVAL,default=5s"`
	SweepInterval     time.Duration `env:"SWEEP_INTERVAL,default=10m"`
	SweepLookback     time.Duration `env:"SWEEP_LOOKBACK,default=168h"`
	DirectorySeed     string        `env:"DIRECTORY_SEED"`
}
