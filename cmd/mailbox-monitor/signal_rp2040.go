//go:build rp2040

package main

import "context"

// The board runs until power is removed.
func signalContext() (context.Context, context.CancelFunc) {
	return context.WithCancel(context.Background())
}
