//go:build cgo

package window

import (
	webview "github.com/webview/webview_go"
)

type webviewBrowser struct {
	w webview.WebView
}

// NewWebView opens a native webview window.
func NewWebView(opts Options) (Browser, error) {
	opts = opts.withDefaults()
	w := webview.New(opts.Debug)
	if w == nil {
		return nil, ErrBackendUnavailable
	}
	return &webviewBrowser{w: w}, nil
}

func (b *webviewBrowser) SetTitle(title string) { b.w.SetTitle(title) }

func (b *webviewBrowser) SetSize(width, height int) {
	b.w.SetSize(width, height, webview.HintNone)
}

func (b *webviewBrowser) Navigate(url string) { b.w.Navigate(url) }
func (b *webviewBrowser) Run()                { b.w.Run() }
func (b *webviewBrowser) Dispatch(f func())   { b.w.Dispatch(f) }
func (b *webviewBrowser) Terminate()          { b.w.Terminate() }
func (b *webviewBrowser) Destroy()            { b.w.Destroy() }
