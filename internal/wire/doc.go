// Package wire encodes bundle records in protobuf wire format. The message
// layout is documented in bundle.proto; encoders are written directly against
// protowire so the bundle does not depend on generated code.
package wire
