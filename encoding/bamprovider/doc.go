// Package bamprovider reads the alignments overlapping a genomic region from
// a coordinate-sorted, indexed BAM file.
//
// The Provider is an interface for region queries; BAMProvider implements it
// on top of a .bai index and is safe for concurrent use.  NewFakeProvider
// serves records from memory for tests.
package bamprovider
