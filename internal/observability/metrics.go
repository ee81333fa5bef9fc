package observability

type Metrics interface {
	ObserveLookup(source string, cacheMs, dbMs float64)
	ObserveUpsert(dbWriteMs float64, items int)
	ObserveHTTP(method, route string, status int, durMs float64)
	ObservePublish(publishMs float64, ok bool)
	IncCacheHit()
	IncCacheMiss()
	IncAuthFailure(reason string)
}

type Noop struct{}

func NewNoop() Noop { return Noop{} }

func (Noop) ObserveLookup(string, float64, float64)   {}
func (Noop) ObserveUpsert(float64, int)               {}
func (Noop) ObserveHTTP(string, string, int, float64) {}
func (Noop) ObservePublish(float64, bool)             {}
func (Noop) IncCacheHit()                             {}
func (Noop) IncCacheMiss()                            {}
func (Noop) IncAuthFailure(string)                    {}
