// Package config loads tablekeep configuration.
//
// Values come from three layers, later ones winning:
//
//  1. built-in defaults (Default)
//  2. an optional YAML file named by TABLEKEEP_CONFIG_FILE
//  3. TABLEKEEP_* environment variables
//
// Required settings are TABLEKEEP_DATABASE_URL and TABLEKEEP_TOKEN_SECRET
// (at least 32 bytes).
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
package config
