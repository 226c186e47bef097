// Package config loads isomorph server configuration.
//
// Configuration comes from three layers, later ones winning:
//
//  1. Built-in defaults (New).
//  2. isomorph.json at the project root.
//  3. Environment variables prefixed ISOMORPH_, optionally loaded from a
//     .env file first.
//
// Command-line flags are applied on top by the CLI.
//
// # Configuration File Structure
//
//	{
//	  "server": {
//	    "addr": ":8080",
//	    "shutdownTimeout": "10s",
//	    "h2c": false
//	  },
//	  "assets": {
//	    "dir": "dist",
//	    "prefix": "/pkg/",
//	    "s3": {"bucket": "", "prefix": "", "region": "us-east-1"}
//	  },
//	  "build": {"public": "public", "output": "dist"},
//	  "session": {
//	    "maxPerIP": 100,
//	    "pingInterval": "30s",
//	    "readTimeout": "60s",
//	    "writeTimeout": "10s",
//	    "rateLimit": 50,
//	    "rateBurst": 100
//	  },
//	  "render": {"cacheSize": 512},
//	  "log": {"level": "info", "format": "text"}
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	slog.SetDefault(cfg.Logger(os.Stderr))
package config
