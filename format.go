package rhi

import "github.com/gogpu/gputypes"

// formatInfo is the channel layout of an uncompressed color format.
type formatInfo struct {
	channels       uint32
	componentBytes uint32
}

var formatInfos = map[gputypes.TextureFormat]formatInfo{
	gputypes.TextureFormatR8Unorm:  {1, 1},
	gputypes.TextureFormatR8Snorm:  {1, 1},
	gputypes.TextureFormatR8Uint:   {1, 1},
	gputypes.TextureFormatR8Sint:   {1, 1},
	gputypes.TextureFormatR16Unorm: {1, 2},
	gputypes.TextureFormatR16Snorm: {1, 2},
	gputypes.TextureFormatR16Uint:  {1, 2},
	gputypes.TextureFormatR16Sint:  {1, 2},
	gputypes.TextureFormatR16Float: {1, 2},
	gputypes.TextureFormatR32Float: {1, 4},
	gputypes.TextureFormatR32Uint:  {1, 4},
	gputypes.TextureFormatR32Sint:  {1, 4},

	gputypes.TextureFormatRG8Unorm:  {2, 1},
	gputypes.TextureFormatRG8Snorm:  {2, 1},
	gputypes.TextureFormatRG8Uint:   {2, 1},
	gputypes.TextureFormatRG8Sint:   {2, 1},
	gputypes.TextureFormatRG16Unorm: {2, 2},
	gputypes.TextureFormatRG16Snorm: {2, 2},
	gputypes.TextureFormatRG16Uint:  {2, 2},
	gputypes.TextureFormatRG16Sint:  {2, 2},
	gputypes.TextureFormatRG16Float: {2, 2},
	gputypes.TextureFormatRG32Float: {2, 4},
	gputypes.TextureFormatRG32Uint:  {2, 4},
	gputypes.TextureFormatRG32Sint:  {2, 4},

	gputypes.TextureFormatRGBA8Unorm:     {4, 1},
	gputypes.TextureFormatRGBA8UnormSrgb: {4, 1},
	gputypes.TextureFormatRGBA8Snorm:     {4, 1},
	gputypes.TextureFormatRGBA8Uint:      {4, 1},
	gputypes.TextureFormatRGBA8Sint:      {4, 1},
	gputypes.TextureFormatBGRA8Unorm:     {4, 1},
	gputypes.TextureFormatBGRA8UnormSrgb: {4, 1},
	gputypes.TextureFormatRGBA16Unorm:    {4, 2},
	gputypes.TextureFormatRGBA16Snorm:    {4, 2},
	gputypes.TextureFormatRGBA16Uint:     {4, 2},
	gputypes.TextureFormatRGBA16Sint:     {4, 2},
	gputypes.TextureFormatRGBA16Float:    {4, 2},
	gputypes.TextureFormatRGBA32Float:    {4, 4},
	gputypes.TextureFormatRGBA32Uint:     {4, 4},
	gputypes.TextureFormatRGBA32Sint:     {4, 4},
}

// FormatChannelCount returns the number of channels of an uncompressed color
// format, or 0 for formats texel data cannot be addressed in.
func FormatChannelCount(f gputypes.TextureFormat) uint32 {
	return formatInfos[f].channels
}

// FormatElementSize returns the byte size of one texel: channel count times
// component width. It is 0 for unsupported formats.
func FormatElementSize(f gputypes.TextureFormat) uint32 {
	fi := formatInfos[f]
	return fi.channels * fi.componentBytes
}
