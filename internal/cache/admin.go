package cache

import (
	"net/http"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/gpsanalyzer/telemetry.report/internal/httputil"
)

// AttachAdminRoutes mounts the cache's debug pages under /debug/ on mux: a
// live SQL console over the cache database and a JSON listing of entries.
func (c *Cache) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return err
	}
	tsql.SetDB("sqlite://"+c.path, c.db, &tailsql.DBOptions{
		Label: "Result cache",
	})
	debug.Handle("tailsql/", "SQL live debugging of the result cache", tsql.NewMux())

	debug.HandleFunc("cache", "Cached analysis results", func(w http.ResponseWriter, r *http.Request) {
		entries, err := c.List(r.Context())
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, entries)
	})
	return nil
}
