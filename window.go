package dx12

// Window is the surface a FrameBuffer renders for. Creating windows and
// pumping their messages is left to the host application.
type Window interface {
	Width() uint32
	Height() uint32

	// Handle returns the native window handle, zero for none.
	Handle() uintptr
}

// HeadlessWindow is a Window without a native surface.
type HeadlessWindow struct {
	W, H uint32
}

// Width returns W.
func (w HeadlessWindow) Width() uint32 { return w.W }

// Height returns H.
func (w HeadlessWindow) Height() uint32 { return w.H }

// Handle returns 0.
func (HeadlessWindow) Handle() uintptr { return 0 }
