// Copyright (c) 2015-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package txrules provides functions that help establish whether or not a
transaction abides by the relay policy of Bitcoin Core nodes, such as the dust
limit and the minimum relay fee.

Dust

An output is dust when spending it would cost more than a third of its value
at the dust relay fee.  The cost is the serialized size of the output plus the
size of the input that will later spend it: 148 bytes for legacy outputs and
67 virtual bytes for witness programs.
*/
package txrules
