// Package config loads binding configuration for viewstate tools.
//
// The configuration lives in viewstate.json or viewstate.yaml. Both files
// share one schema; absent fields take the binding defaults.
//
// # Configuration File Structure
//
//	{
//	  "binding": {
//	    "strategy": "patch",
//	    "omit": ["scratch"],
//	    "maxPatchKeys": 200,
//	    "maxPayloadBytes": 262144,
//	    "mergeSibling": {"threshold": 3, "maxInflationRatio": 1.25},
//	    "computedCompare": {"mode": "deep", "maxDepth": 32},
//	    "debug": {"enabled": true, "when": "fallback", "sampleRate": 0.1}
//	  },
//	  "devtools": {"host": "localhost", "port": 7070},
//	  "log": {"level": "debug"}
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	b := binding.New(rt, state, adapter, binding.WithOptions(cfg.BindingOptions()))
package config
