// Package config loads vtree.json, the configuration of the vtree CLI.
//
// # Configuration File Structure
//
//	{
//	  "server": {
//	    "address": ":8080",
//	    "livePath": "/live",
//	    "readTimeout": "60s",
//	    "heartbeatInterval": "30s",
//	    "resumeWindow": "30s",
//	    "maxPatchHistory": 100
//	  },
//	  "journal": {
//	    "kind": "s3",
//	    "bucket": "vtree-journals",
//	    "prefix": "dev/",
//	    "region": "eu-west-1"
//	  },
//	  "metrics": {
//	    "enabled": true,
//	    "namespace": "vtree"
//	  },
//	  "debug": true
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	srvCfg, err := cfg.ServerConfig()
package config
