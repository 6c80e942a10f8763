package wam

import "github.com/davecgh/go-spew/spew"

// spewConfig renders heap dumps for DumpHeap without following the
// unexported frame/Module pointers back out of the slice being dumped,
// matching the structural-dump style the pack uses for test diagnostics
// (SPEC_FULL.md §2, Domain stack).
var spewConfig = spew.ConfigState{
	Indent:                  "  ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
}
