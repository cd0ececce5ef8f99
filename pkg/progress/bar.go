package progress

import (
	"io"
	"sync"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// Bar renders the progress as a terminal progress bar.
type Bar struct {
	p   *mpb.Progress
	bar *mpb.Bar

	mu      sync.Mutex
	message string
	done    bool
}

var _ Reporter = &Bar{}

// NewBar starts drawing a bar to w. The bar is finished by Done.
func NewBar(w io.Writer) *Bar {
	b := &Bar{}
	b.p = mpb.New(mpb.WithOutput(w), mpb.WithWidth(40))
	b.bar = b.p.New(100,
		mpb.BarStyle(),
		mpb.PrependDecorators(
			decor.Any(func(decor.Statistics) string {
				return b.currentMessage()
			}, decor.WCSyncSpaceR),
		),
		mpb.AppendDecorators(decor.Percentage(decor.WC{W: 5})),
	)
	return b
}

func (b *Bar) currentMessage() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.message
}

func (b *Bar) Progress(percent int, message string) {
	b.mu.Lock()
	if b.done {
		b.mu.Unlock()
		return
	}
	b.message = message
	b.mu.Unlock()

	// the bar completes on its own at 100, which only Done may do
	b.bar.SetCurrent(int64(min(percent, 99)))
}

func (b *Bar) Done(success bool, message string) {
	b.mu.Lock()
	if b.done {
		b.mu.Unlock()
		return
	}
	b.done = true
	b.message = message
	b.mu.Unlock()

	if success {
		b.bar.SetCurrent(100)
		b.bar.SetTotal(-1, true)
	} else {
		b.bar.Abort(false)
	}
	b.p.Wait()
}
