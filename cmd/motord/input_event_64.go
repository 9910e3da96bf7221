//go:build !(386 || arm || mips || mipsle)

package main

// kernelLong is the C long of a 64-bit Linux kernel.
type kernelLong = int64
