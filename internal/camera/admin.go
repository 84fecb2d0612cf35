package camera

import (
	"fmt"
	"net/http"
	"strconv"

	"tailscale.com/tsweb"

	"github.com/banshee-data/depthcam/internal/httputil"
	"github.com/banshee-data/depthcam/internal/parameter"
)

// AttachAdminRoutes mounts camera status and parameter pages on the tsweb
// debug index of mux.
func (c *Camera) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.Handle("camera", "Camera state and pipeline counters", http.HandlerFunc(c.handleStatus))
	debug.Handle("camera-params", "Camera parameter values", http.HandlerFunc(c.handleParams))
	debug.Handle("camera-set", "Set a camera parameter (POST name=&value=)", http.HandlerFunc(c.handleSet))
}

func (c *Camera) handleStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, c.Stats())
}

func (c *Camera) handleParams(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("refresh") != "" {
		for _, name := range c.params.Names() {
			if p, ok := c.params.Get(name); ok && p.IOType() != parameter.IOWrite {
				if err := p.Refresh(); err != nil {
					opsf("camera %s: refresh %s: %v", c.id, name, err)
				}
			}
		}
	}
	httputil.WriteJSON(w, http.StatusOK, c.params.Snapshot())
}

func (c *Camera) handleSet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	if err := r.ParseForm(); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("bad form: %v", err))
		return
	}
	name := r.PostForm.Get("name")
	raw := r.PostForm.Get("value")
	if name == "" {
		httputil.BadRequest(w, "missing name")
		return
	}

	var v any = raw
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		v = f
	}
	if err := c.SetParameter(name, v); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	val, err := c.GetParameter(name)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"name": name, "value": val})
}
