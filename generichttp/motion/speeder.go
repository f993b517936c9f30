package motion

import (
	"net/http"

	"github.com/go-chi/chi"
	"github.jpl.nasa.gov/bdube/vmotor/generichttp"
)

// Speeder describes an interface with velocity-related methods for axes
type Speeder interface {
	// SetVelocity sets the velocity setpoint on the axis
	SetVelocity(string, float64) error

	// GetVelocity gets the velocity setpoint on the axis
	GetVelocity(string) (float64, error)
}

// Jogger can move an axis at a constant, signed velocity until stopped
type Jogger interface {
	Jog(string, float64) error
}

// HTTPSpeed adds routes for the speeder to the route table
func HTTPSpeed(iface Speeder, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/axis/{axis}/velocity"}] = SetVelocity(iface)
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/axis/{axis}/velocity"}] = GetVelocity(iface)
}

// HTTPJog adds the jog route to the route table
func HTTPJog(iface Jogger, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/axis/{axis}/jog"}] = Jog(iface)
}

// SetVelocity returns an HTTP handler func which sets the velocity setpoint on an axis
func SetVelocity(s Speeder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		axis := chi.URLParam(r, "axis")
		generichttp.SetFloat(func(f float64) error {
			return s.SetVelocity(axis, f)
		})(w, r)
	}
}

// GetVelocity returns an HTTP handler func which gets the velocity setpoint on an axis
func GetVelocity(s Speeder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		axis := chi.URLParam(r, "axis")
		generichttp.GetFloat(func() (float64, error) {
			return s.GetVelocity(axis)
		})(w, r)
	}
}

// Jog returns an HTTP handler func which jogs an axis at the {'f64': velocity}
// in the body.  The sign of the velocity is the direction.
func Jog(j Jogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		axis := chi.URLParam(r, "axis")
		generichttp.SetFloat(func(f float64) error {
			return j.Jog(axis, f)
		})(w, r)
	}
}
