// Package servo implements the binary command protocol of MKS SERVO42D/57D style
// closed-loop stepper controllers on a CAN bus.
//
// # Frame Layout
//
// Every request and reply is a single CAN frame addressed with the controller's
// identifier (1..6 for the arm's axes):
//
//	[opcode(1)][payload(0–6)][checksum(1)]
//
// Multi-byte integers are big-endian. The checksum is the 8-bit sum of the
// identifier's big-endian bytes and every preceding data byte.
//
// # Requests and Responses
//
// Requests are plain structs implementing [Request] (e.g. [RunAbsoluteMotion]);
// [Encode] validates their fields and builds the frame. [Decode] turns a reply
// frame into one of the [Response] types. Commands whose reply is only a success
// flag share [AckResponse]; motion commands share [MotionResponse], which may be
// received several times for one request (Busy, then a terminal status).
//
// Decode errors match the sentinels [ErrChecksumMismatch], [ErrUnknownOpcode],
// [ErrPayloadTooShort] and [ErrInvalidEnumValue] with errors.Is, and carry the
// details in typed errors such as [*ChecksumMismatchError].
package servo
