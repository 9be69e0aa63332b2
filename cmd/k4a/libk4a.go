//go:build k4a && cgo

package main

import _ "go.viam.com/k4a/native/libk4a" // register the vendor library
