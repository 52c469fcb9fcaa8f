// Package config handles configuration loading for safespace-admin.
//
// # Sources
//
// Configuration comes from a YAML or TOML file (chosen by extension) or, when
// no file is given, from SAFESPACE_* environment variables. Either way .env
// files may be loaded first with LoadDotEnv; variables already present in the
// environment win.
//
// File values can reference environment variables:
//
//	backend:
//	  anon_key: "${SAFESPACE_ANON_KEY}"
//
// # Sections
//
//	backend:
//	  mode: "supabase"            # supabase, local
//	  url: "https://xyz.supabase.co"
//	  anon_key: "eyJ..."
//	  service_role_key: ""        # optional, lets a failed signup delete its identity
//	  request_timeout: "30s"
//
//	local:
//	  database_path: "./safespace.db"
//	  storage_dir: "./objects"
//	  public_base_url: "http://localhost:8080"
//	  jwt_secret: "${SAFESPACE_JWT_SECRET}"   # at least 32 bytes
//	  session_ttl: "24h"
//
//	storage:
//	  driver: "api"               # api, s3
//	  s3:
//	    endpoint: "https://xyz.supabase.co/storage/v1/s3"
//	    region: "us-east-1"
//	    access_key_id: "..."
//	    secret_access_key: "..."
//	    public_base_url: ""
//
//	session:
//	  path: "~/.config/safespace-admin/session.json"
//
//	logging:
//	  level: "info"               # debug, info, warn, error
//	  format: "text"              # text, json
//
// # Validation
//
// Validate reports the first problem found: a missing or malformed backend URL,
// an anon key that is not a JWT, a short local JWT secret, or incomplete S3
// credentials.
package config
