//go:build 386 || arm || mips || mipsle

package main

// kernelLong is the C long of a 32-bit Linux kernel (32-bit Raspberry Pi OS).
type kernelLong = int32
