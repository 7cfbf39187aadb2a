// Package protocol decodes and builds RTU102 datagrams.
//
// Wire layout:
//
//	0xC0 | stuffed(8-byte LE IMEI || XTEA-ECB(payload || pad || CRC16-LE)) | 0xC2
//
// Decode is a pure function of the datagram and a KeyResolver. Failures that
// abort a decode are returned as *Error; anomalies inside the payload are
// collected as Issues on the Outcome.
package protocol
