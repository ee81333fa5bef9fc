package observability

import "sync"

type observe struct {
	Kind   string  `json:"kind"`
	Source string  `json:"source,omitempty"`
	Method string  `json:"method,omitempty"`
	Route  string  `json:"route,omitempty"`
	Status int     `json:"status,omitempty"`
	Items  int     `json:"items,omitempty"`
	OK     bool    `json:"ok,omitempty"`
	DurMs  float64 `json:"durMs"`
	DBMs   float64 `json:"dbMs,omitempty"`
}

// Totals is a point-in-time copy of the Inmem counters.
type Totals struct {
	CacheHits     int            `json:"cacheHits"`
	CacheMisses   int            `json:"cacheMisses"`
	Upserts       int            `json:"upserts"`
	Published     int            `json:"published"`
	PublishFailed int            `json:"publishFailed"`
	AuthFailures  map[string]int `json:"authFailures"`
	Recent        []observe      `json:"recent"`
}

// Inmem keeps counters and the last max observations. It backs /debug/metrics.
type Inmem struct {
	mu     sync.Mutex
	last   []*observe
	max    int
	totals struct {
		cacheHits, cacheMiss     int
		upserts                  int
		published, publishFailed int
		authFailures             map[string]int
	}
}

func NewInmem(max int) *Inmem {
	return &Inmem{
		max: max,
	}
}

func (m *Inmem) push(v *observe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = append(m.last, v)
	if len(m.last) > m.max {
		m.last = m.last[len(m.last)-m.max:]
	}
}

func (m *Inmem) ObserveLookup(source string, cacheMs, dbMs float64) {
	m.push(&observe{Kind: "lookup", Source: source, DurMs: cacheMs, DBMs: dbMs})
}

func (m *Inmem) ObserveUpsert(dbWriteMs float64, items int) {
	m.mu.Lock()
	m.totals.upserts++
	m.mu.Unlock()
	m.push(&observe{Kind: "upsert", DBMs: dbWriteMs, Items: items})
}

func (m *Inmem) ObserveHTTP(method, route string, status int, durMs float64) {
	m.push(&observe{Kind: "http", Method: method, Route: route, Status: status, DurMs: durMs})
}

func (m *Inmem) ObservePublish(publishMs float64, ok bool) {
	m.mu.Lock()
	if ok {
		m.totals.published++
	} else {
		m.totals.publishFailed++
	}
	m.mu.Unlock()
	m.push(&observe{Kind: "publish", DurMs: publishMs, OK: ok})
}

func (m *Inmem) IncCacheHit() {
	m.mu.Lock()
	m.totals.cacheHits++
	m.mu.Unlock()
}

func (m *Inmem) IncCacheMiss() {
	m.mu.Lock()
	m.totals.cacheMiss++
	m.mu.Unlock()
}

func (m *Inmem) IncAuthFailure(reason string) {
	m.mu.Lock()
	if m.totals.authFailures == nil {
		m.totals.authFailures = make(map[string]int)
	}
	m.totals.authFailures[reason]++
	m.mu.Unlock()
}

func (m *Inmem) Totals() Totals {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := Totals{
		CacheHits:     m.totals.cacheHits,
		CacheMisses:   m.totals.cacheMiss,
		Upserts:       m.totals.upserts,
		Published:     m.totals.published,
		PublishFailed: m.totals.publishFailed,
		AuthFailures:  make(map[string]int, len(m.totals.authFailures)),
		Recent:        make([]observe, 0, len(m.last)),
	}
	for k, v := range m.totals.authFailures {
		t.AuthFailures[k] = v
	}
	for _, o := range m.last {
		t.Recent = append(t.Recent, *o)
	}
	return t
}
