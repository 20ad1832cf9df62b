package rhi

import "github.com/gogpu/rhi/backend"

// SharedHandle is an opaque interop handle. The zero value is null.
type SharedHandle = backend.SharedHandle

// HandleType identifies the API a shared handle comes from.
type HandleType = backend.HandleType

// Handle types.
const (
	HandleUnknown       = backend.HandleUnknown
	HandleWin32         = backend.HandleWin32
	HandleFD            = backend.HandleFD
	HandleD3D12Resource = backend.HandleD3D12Resource
	HandleHost          = backend.HandleHost
)
