package window

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/zserge/lorca"
)

// lorcaBrowser drives a Chrome app window over the devtools protocol.
// lorca is safe for concurrent use, so Dispatch runs f directly.
type lorcaBrowser struct {
	ui        lorca.UI
	logger    *slog.Logger
	closeOnce sync.Once
}

// NewLorca opens a Chrome or Chromium app window.
func NewLorca(opts Options) (Browser, error) {
	opts = opts.withDefaults()
	if lorca.LocateChrome() == "" {
		return nil, fmt.Errorf("%w: Chrome not found", ErrBackendUnavailable)
	}
	ui, err := lorca.New(placeholderURL(opts.BackgroundColor), "", opts.Width, opts.Height, "--remote-allow-origins=*")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return &lorcaBrowser{ui: ui, logger: opts.Logger.With("component", "lorca")}, nil
}

func (b *lorcaBrowser) SetTitle(title string) {
	if v := b.ui.Eval("document.title = " + strconv.Quote(title)); v.Err() != nil {
		b.logger.Debug("Failed to set title", "error", v.Err())
	}
}

func (b *lorcaBrowser) SetSize(width, height int) {
	err := b.ui.SetBounds(lorca.Bounds{Width: width, Height: height, WindowState: lorca.WindowStateNormal})
	if err != nil {
		b.logger.Debug("Failed to resize window", "error", err)
	}
}

func (b *lorcaBrowser) Navigate(url string) {
	if err := b.ui.Load(url); err != nil {
		b.logger.Error("Failed to load page", "url", url, "error", err)
	}
}

func (b *lorcaBrowser) Run() {
	<-b.ui.Done()
}

func (b *lorcaBrowser) Dispatch(f func()) {
	go f()
}

func (b *lorcaBrowser) Terminate() {
	b.Destroy()
}

func (b *lorcaBrowser) Destroy() {
	b.closeOnce.Do(func() {
		if err := b.ui.Close(); err != nil {
			b.logger.Debug("Failed to close Chrome", "error", err)
		}
	})
}
