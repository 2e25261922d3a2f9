// Package config loads typed configuration structs from environment
// variables using github.com/caarlos0/env, with optional .env files read by
// github.com/joho/godotenv.
//
// Every component owns its config struct and env tags. The service composes
// them at startup:
//
//	var pgCfg pg.Config
//	config.MustLoad(&pgCfg)
package config
