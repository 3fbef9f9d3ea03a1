// Package blob implements the binary schedule format consumed by the runtime and the
// parser that rebuilds a graph from it.
//
// All integers are little-endian. An artifact is an envelope around two sections:
//
//	Envelope:
//	  [8 bytes: Magic "NPUSCHED"]
//	  [4 bytes: Major version (uint32)]
//	  [4 bytes: Minor version (uint32)]
//	  [4 bytes: Section count (uint32), always 2]
//	  [8 bytes: Schedule size (uint64)]
//	  [Schedule section]
//	  [8 bytes: Weights size (uint64)]
//	  [Weights: constant pool bytes]
//
//	Schedule section:
//	  [Header: version, program id, architecture, network I/O, resources]
//	  [Barrier list]
//	  [DMA lists, one per port]
//	  [Invariant, variant, kernel range and kernel invocation lists]
//	  [Plan counts]
//	  [32 bytes: SHA-256 of everything above]
//
// Decoding validates the envelope, the checksum and every declared length against the
// supplied buffer. Any violation is reported as diag.ErrTruncatedOrCorruptInput with
// the byte offset where it was detected.
//
// Example usage:
//
//	data, err := blob.Encode(sched)
//	if err != nil {
//	    return err
//	}
//	g, err := blob.Decode(data)
package blob
