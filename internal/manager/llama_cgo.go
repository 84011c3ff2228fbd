//go:build llama

package manager

// cgo link directives for the go-llama.cpp adapter.
// - An rpath of $ORIGIN lets the loader find libllama.so next to the binary.
// - -L${SRCDIR}/../../bin finds it at link time for the 'llama' variant.
/*
#cgo LDFLAGS: -Wl,-rpath,'$ORIGIN' -L${SRCDIR}/../../bin -lllama
*/
import "C"
