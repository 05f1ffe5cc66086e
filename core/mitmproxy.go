package core

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"
	"uaswitch/logger"
	"uaswitch/metrics"
	"uaswitch/models"

	"github.com/elazarl/goproxy"
)

// RuleSnapshotter exposes the active rule set and a generation that changes with it.
type RuleSnapshotter interface {
	Snapshot() ([]models.CompiledRule, uint64)
}

type ProxyOptions struct {
	// MITM intercepts CONNECT tunnels so rules apply to HTTPS requests. Requires CA.
	MITM    bool
	CA      *tls.Certificate
	Metrics *metrics.Metrics
	Verbose bool
}

// RewriteProxy is a forward proxy that rewrites request headers using the active rules.
type RewriteProxy struct {
	rules   RuleSnapshotter
	metrics *metrics.Metrics
	server  *goproxy.ProxyHttpServer

	mu         sync.Mutex
	generation uint64
	loaded     bool
	matcher    *RuleMatcher
}

func NewRewriteProxy(rules RuleSnapshotter, opts ProxyOptions) (*RewriteProxy, error) {
	if opts.MITM && opts.CA == nil {
		return nil, errors.New("HTTPS interception requires a CA certificate; run 'proxy init-ca' first or disable proxy.mitm")
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Get()
	}

	p := &RewriteProxy{rules: rules, metrics: opts.Metrics}

	server := goproxy.NewProxyHttpServer()
	server.Verbose = opts.Verbose
	server.Logger = log.New(io.Discard, "", 0)

	if opts.MITM {
		ca := *opts.CA
		mitmAction := &goproxy.ConnectAction{Action: goproxy.ConnectMitm, TLSConfig: goproxy.TLSConfigFromCA(&ca)}
		server.OnRequest().HandleConnect(goproxy.FuncHttpsHandler(func(host string, ctx *goproxy.ProxyCtx) (*goproxy.ConnectAction, string) {
			logger.ProxyDebug("CONNECT %s (session %d): intercepting", host, ctx.Session)
			return mitmAction, host
		}))
	}

	server.OnRequest().DoFunc(func(r *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
		p.Rewrite(r)
		return r, nil
	})

	p.server = server
	return p, nil
}

func (p *RewriteProxy) currentMatcher() *RuleMatcher {
	rules, gen := p.rules.Snapshot()
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded || gen != p.generation {
		p.matcher = NewRuleMatcher(rules)
		p.generation = gen
		p.loaded = true
		logger.ProxyInfo("Loaded %d rule(s) (generation %d).", p.matcher.Len(), gen)
	}
	return p.matcher
}

// Rewrite applies the matching rule, if any, to r in place.
func (p *RewriteProxy) Rewrite(r *http.Request) (models.CompiledRule, bool) {
	u := RequestURL(r)
	resourceType := ResourceTypeFromRequest(r)

	rule, ok := p.currentMatcher().Match(u, resourceType)
	if !ok {
		p.metrics.ProxyRequests.WithLabelValues("unmatched", resourceType).Inc()
		logger.ProxyDebug("REQ: %s %s [%s] - no rule", r.Method, u.String(), resourceType)
		return models.CompiledRule{}, false
	}

	before := r.Header.Get(models.UserAgentHeader)
	ApplyRule(r.Header, rule)
	p.metrics.ProxyRequests.WithLabelValues("rewritten", resourceType).Inc()
	logger.ProxyInfo("REQ: %s %s [%s] - rule %d, User-Agent %q -> %q", r.Method, u.String(), resourceType, rule.ID, before, r.Header.Get(models.UserAgentHeader))
	return rule, true
}

func (p *RewriteProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.server.ServeHTTP(w, r)
}

// Serve runs the proxy on addr until ctx is cancelled.
func (p *RewriteProxy) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: p}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.ProxyError("Proxy: graceful shutdown failed: %v", err)
		}
	}()

	logger.ProxyInfo("Proxy server starting on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("proxy listen on %s: %w", addr, err)
	}
	logger.ProxyInfo("Proxy server on %s stopped.", addr)
	return nil
}
