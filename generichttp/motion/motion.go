// Package motion provides an HTTP interface to motion controllers
package motion

/*
A controller only has to be a Mover.  NewHTTPMotionController checks which of
the other interfaces in this package it satisfies and binds their routes too.
*/
import (
	"github.jpl.nasa.gov/bdube/vmotor/generichttp"
)

// Controller is used for the HTTP interface, which will check if the concrete
// type satisfies the other interfaces in this package and inject their routes
// automatically
type Controller interface {
	// Mover - all Controllers must be Movers
	Mover
}

// HTTPMotionController wraps a motion controller with HTTP
type HTTPMotionController struct {
	Controller

	RouteTable generichttp.RouteTable
}

// NewHTTPMotionController returns a new HTTP wrapper with the route table pre-configured
func NewHTTPMotionController(c Controller) HTTPMotionController {
	w := HTTPMotionController{Controller: c}
	rt := generichttp.RouteTable{}
	HTTPMove(c, rt)
	if definer, ok := c.(PositionDefiner); ok {
		HTTPDefinePos(definer, rt)
	}
	if stopper, ok := c.(Stopper); ok {
		HTTPStop(stopper, rt)
	}
	if speeder, ok := c.(Speeder); ok {
		HTTPSpeed(speeder, rt)
	}
	if jogger, ok := c.(Jogger); ok {
		HTTPJog(jogger, rt)
	}
	if inpos, ok := c.(InPositionQueryer); ok {
		HTTPInPosition(inpos, rt)
	}
	if statuser, ok := c.(StatusQueryer); ok {
		HTTPStatus(statuser, rt)
	}
	w.RouteTable = rt
	return w
}

// RT satisfies the HTTPer interface
func (h HTTPMotionController) RT() generichttp.RouteTable {
	return h.RouteTable
}
