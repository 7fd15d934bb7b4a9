//go:build !cgo

package window

import "fmt"

// NewWebView needs cgo; without it only the lorca backend is available.
func NewWebView(opts Options) (Browser, error) {
	return nil, fmt.Errorf("%w: webview requires cgo", ErrBackendUnavailable)
}
