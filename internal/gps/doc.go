// Package gps turns a raw NMEA 0183 byte stream into position fixes.
//
// The pipeline is Framer (bytes to checksum-stripped lines), Parse (tokens to
// one of the Sentence types), and Aggregator (sentences to a monotonic fix
// state). Service wires the three together behind a bounded queue.
//
// Recognized sentences: GGA, GST, GSA, RMC and the Leica LLQ/LLK pair. Only
// GGA produces fixes; the rest update auxiliary state.
package gps
