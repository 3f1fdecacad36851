// Package bundle writes the bundle-level files (descriptor and copied
// workspace configs), packs the bundle tree into a single deflated archive and
// cleans generated state.
package bundle
