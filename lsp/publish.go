package lsp

import (
	"sync"
	"time"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"golang.org/x/time/rate"
)

// publisher sends diagnostics notifications, at most limit per second and
// document. When a document is over its limit the latest diagnostics are
// sent once it is allowed again.
type publisher struct {
	mu    sync.Mutex
	limit rate.Limit
	burst int
	docs  map[protocol.DocumentUri]*pendingDiagnostics
}

type pendingDiagnostics struct {
	limiter *rate.Limiter
	timer   *time.Timer
	params  protocol.PublishDiagnosticsParams
	closed  bool
}

func newPublisher(limit rate.Limit, burst int) *publisher {
	return &publisher{
		limit: limit,
		burst: burst,
		docs:  make(map[protocol.DocumentUri]*pendingDiagnostics),
	}
}

func (p *publisher) publish(notify glsp.NotifyFunc, params protocol.PublishDiagnosticsParams) {
	p.mu.Lock()
	d := p.docs[params.URI]
	if d == nil {
		d = &pendingDiagnostics{limiter: rate.NewLimiter(p.limit, p.burst)}
		p.docs[params.URI] = d
	}
	d.params = params
	if d.timer != nil {
		p.mu.Unlock()
		return
	}
	delay := d.limiter.Reserve().Delay()
	if delay == 0 {
		p.mu.Unlock()
		notify(protocol.ServerTextDocumentPublishDiagnostics, params)
		return
	}
	d.timer = time.AfterFunc(delay, func() {
		p.mu.Lock()
		latest, closed := d.params, d.closed
		d.timer = nil
		p.mu.Unlock()
		if closed {
			return
		}
		notify(protocol.ServerTextDocumentPublishDiagnostics, latest)
	})
	p.mu.Unlock()
}

// clear drops the state kept for uri, including pending diagnostics, and
// sends empty diagnostics for it right away.
func (p *publisher) clear(notify glsp.NotifyFunc, uri protocol.DocumentUri) {
	p.mu.Lock()
	if d := p.docs[uri]; d != nil {
		d.closed = true
		if d.timer != nil {
			d.timer.Stop()
		}
		delete(p.docs, uri)
	}
	p.mu.Unlock()
	notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
}

func (p *publisher) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, d := range p.docs {
		if d.timer != nil {
			d.timer.Stop()
			d.timer = nil
		}
	}
}
