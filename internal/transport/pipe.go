package transport

import (
	"context"
	"sync"

	"github.com/park285/deft-reversi-go/pkg/reversidto"
)

// Pipe runs the engine handler in-process behind channels. With more than one worker
// replies can come back out of send order.
type Pipe struct {
	handler Handler
	in      chan reversidto.Envelope
	out     chan reversidto.Reply

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	wg     sync.WaitGroup
}

// NewPipe starts workers goroutines serving h.
func NewPipe(h Handler, workers int) *Pipe {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipe{
		handler: h,
		in:      make(chan reversidto.Envelope, 64),
		out:     make(chan reversidto.Reply, 64),
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.work()
	}
	return p
}

func (p *Pipe) work() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case env := <-p.in:
			reply := p.handler.Handle(p.ctx, env)
			select {
			case p.out <- reply:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

func (p *Pipe) Send(ctx context.Context, env reversidto.Envelope) error {
	select {
	case p.in <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrClosed
	}
}

func (p *Pipe) Receive(ctx context.Context) (reversidto.Reply, error) {
	select {
	case r := <-p.out:
		return r, nil
	case <-ctx.Done():
		return reversidto.Reply{}, ctx.Err()
	case <-p.ctx.Done():
		return reversidto.Reply{}, ErrClosed
	}
}

func (p *Pipe) Close() error {
	p.once.Do(func() {
		p.cancel()
		p.wg.Wait()
	})
	return nil
}
