// Package container implements the binary layout shared by the native
// continuous recording format (.eegc) and the cached epoch artifact (.eegx).
//
// Layout, all integers little-endian:
//
//	magic    [4]byte  "EEGC" (raw) or "EEGX" (epochs)
//	version  uint16   currently 1
//	hdrLen   uint32   length of the JSON header
//	header   []byte   JSON encoded Header
//	samples  []float  float32 for raw, float64 for epochs
//	crc      uint32   CRC-32 (IEEE) of every preceding byte
//
// Raw samples are channel-major. Epoch samples are ordered epoch, channel,
// sample.
package container
