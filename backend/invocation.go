package backend

// HostModule links a Go kernel for a concrete specialization. It is called
// once per kernel request; the returned kernel runs once per thread.
type HostModule func(req *KernelRequest) (HostKernel, error)

// HostKernel is the body of a host kernel.
type HostKernel func(inv *Invocation) error

// Invocation is one thread of a host kernel launch.
type Invocation struct {
	GroupID  [3]uint32
	LocalID  [3]uint32
	GlobalID [3]uint32
	// LocalIndex is the flattened LocalID.
	LocalIndex uint32

	// Globals is the program's global-parameter block.
	Globals *ArgumentBlock
	// Entry is the entry point's own parameter block.
	Entry *ArgumentBlock
}
