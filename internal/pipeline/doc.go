// Package pipeline runs the extraction stages that turn workspace FSD files
// and cached game resources into bundle artifacts.
//
// Stages register themselves from init() through MustRegister and are
// enabled by blank-importing their package from the binary. Each stage
// receives an Env carrying the bundle root, the FSD loader, the resource
// cache and the per-domain validation policy. Record validation, atomic
// output writes and SQLite helpers are shared here so stages only describe
// their mapping.
package pipeline
