//go:build cgo && emucb

package emulator

// FFICallbacks reports whether the build exports the emu_* callbacks an
// external interpreter uses to read session state.
const FFICallbacks = true
