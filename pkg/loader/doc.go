// Package loader implements a demand-paged loader for statically linked
// ELF32 executables: it parses the program-header table, installs a
// page-fault handler that maps and populates one page at a time on first
// touch, and transfers control to the entry point.
//
// Go cannot install a C-ABI SIGSEGV handler or execute arbitrary native
// machine code without cgo or hand-written assembly. This package gets the
// same observable behavior — real hardware page faults, real demand
// paging, real fragmentation accounting — through debug.SetPanicOnFault
// and a tiny interpreted instruction set standing in for the entry point's
// native code; see vm.go.
package loader
