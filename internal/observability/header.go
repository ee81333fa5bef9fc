package observability

import (
	"fmt"
	"net/http"
	"strconv"
)

// Server-Timing metric names emitted by the API.
const (
	TimingApp     = "app"
	TimingCache   = "cache"
	TimingDB      = "db"
	TimingDBWrite = "db_write"
	TimingSource  = "source"
	TimingVerify  = "verify"
)

// AppendServerTiming adds one Server-Timing entry. Non-positive durations and
// empty descriptions are omitted; an entry with neither is not written.
func AppendServerTiming(w http.ResponseWriter, name string, durMs float64, desc string) {
	entry := name
	if durMs > 0 {
		entry += ";dur=" + strconv.FormatFloat(durMs, 'f', 2, 64)
	}
	if desc != "" {
		entry += fmt.Sprintf(";desc=%q", desc)
	}
	if entry == name {
		return
	}
	w.Header().Add("Server-Timing", entry)
}

// SetIfPos sets key to ms formatted with two decimals when ms is positive.
func SetIfPos(w http.ResponseWriter, key string, ms float64) {
	if ms > 0 {
		w.Header().Set(key, strconv.FormatFloat(ms, 'f', 2, 64))
	}
}
