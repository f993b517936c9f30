package motion

import (
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"github.jpl.nasa.gov/bdube/vmotor/generichttp"
)

// InPositionQueryer is a type which can query whether an axis is in position
type InPositionQueryer interface {
	// GetInPosition returns True if the axis is in position
	GetInPosition(string) (bool, error)
}

// StatusQueryer can describe the state of an axis as named numbers
type StatusQueryer interface {
	GetStatus(string) (map[string]float64, error)
}

// GetInPosition returns an http.HandlerFunc for i.GetInPosition
func GetInPosition(i InPositionQueryer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		axis := chi.URLParam(r, "axis")
		generichttp.GetBool(func() (bool, error) {
			return i.GetInPosition(axis)
		})(w, r)
	}
}

// GetStatus returns an http.HandlerFunc that responds with the status of an
// axis as a JSON object
func GetStatus(s StatusQueryer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		axis := chi.URLParam(r, "axis")
		st, err := s.GetStatus(axis)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		render.JSON(w, r, st)
	}
}

// HTTPInPosition adds routes for InPosition to the route table
func HTTPInPosition(iface InPositionQueryer, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/axis/{axis}/inposition"}] = GetInPosition(iface)
}

// HTTPStatus adds the status route to the route table
func HTTPStatus(iface StatusQueryer, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/axis/{axis}/status"}] = GetStatus(iface)
}
